package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Output is the result of a finished program.
type Output struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type runner interface {
	run(ctx context.Context, name string, args []string) (Output, error)
}

type execRunner struct{}

func (execRunner) run(ctx context.Context, name string, args []string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			out.Code = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}
