// Package app is the process entry: it selects capabilities for the build
// target, finalizes the runtime and blocks in the run loop.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/weatherdesk/internal/appconfig"
	"yashubustudio/weatherdesk/internal/builder"
	"yashubustudio/weatherdesk/internal/fyneloop"
	"yashubustudio/weatherdesk/internal/platform"
)

const processName = "weatherdesk"

// Entry wires one process run. Zero-valued optional fields fall back to
// defaults in Run.
type Entry struct {
	Variant    platform.Variant
	Embedded   []byte
	Loop       builder.Loop
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// StateDir overrides where window state is stored.
	StateDir string
	// OnTransition observes state changes.
	OnTransition func(from, to State)

	state State
}

// NewEntry returns the production entry for this build target.
func NewEntry(logger *slog.Logger) *Entry {
	return &Entry{
		Variant:    platform.Current(),
		Embedded:   appconfig.Embedded(),
		Loop:       fyneloop.New(fyneloop.Options{Logger: logger}),
		Logger:     logger,
		Registerer: prometheus.NewRegistry(),
	}
}

func (e *Entry) State() State { return e.state }

// Run initializes the capability set, starts the loop and blocks until the
// application exits, then logs the run's counter totals. Initialization
// failures are returned; deciding to terminate the process is left to the
// caller.
func (e *Entry) Run() error {
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Loop == nil {
		return errors.New("no run loop configured")
	}
	if err := e.transition(Initializing); err != nil {
		return err
	}
	rt, err := e.initialize()
	if err == nil {
		err = rt.Start(e.Loop)
	}
	if err != nil {
		_ = e.transition(Terminated)
		return err
	}
	if err := e.transition(Running); err != nil {
		return err
	}
	e.Loop.Run()
	if err := e.transition(Terminated); err != nil {
		return err
	}
	e.reportMetrics()
	return nil
}

func (e *Entry) initialize() (*builder.Runtime, error) {
	b := builder.New(
		builder.WithLogger(e.Logger),
		builder.WithRegisterer(e.Registerer),
		builder.WithVariant(e.Variant),
	)
	deps := platform.Deps{Logger: e.Logger, Registerer: e.Registerer, StateDir: e.StateDir}
	for _, p := range platform.Plugins(e.Variant, deps) {
		if err := b.Register(p); err != nil {
			return nil, fmt.Errorf("register %s: %w", p.Name(), err)
		}
	}
	return b.Finalize(e.Embedded)
}

// Main is the whole process: it runs the production entry and returns the
// exit status.
func Main(stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	return ExitCode(stderr, NewEntry(logger).Run())
}

// ExitCode is the fatal-failure policy: any error is reported on stderr
// and ends the process with status 1.
func ExitCode(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *builder.ConfigurationError
	var loopErr *builder.LoopStartError
	switch {
	case errors.As(err, &cfgErr):
		fmt.Fprintf(stderr, "%s: invalid embedded configuration: %v\n", processName, err)
	case errors.As(err, &loopErr):
		fmt.Fprintf(stderr, "%s: cannot start: %v\n", processName, err)
	default:
		fmt.Fprintf(stderr, "%s: %v\n", processName, err)
	}
	return 1
}
