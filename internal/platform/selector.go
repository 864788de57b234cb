package platform

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/weatherdesk/internal/capability"
	"yashubustudio/weatherdesk/internal/shell"
	"yashubustudio/weatherdesk/internal/windowstate"
)

// Deps are handed to every plugin the selector constructs.
type Deps struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	StateDir   string
}

// Plugins returns the ordered capability set for v. Command execution is
// present everywhere; window geometry only means something where windows
// can be resized and moved.
func Plugins(v Variant, deps Deps) []capability.Plugin {
	plugins := []capability.Plugin{
		shell.New(shell.Options{Logger: deps.Logger, Registerer: deps.Registerer}),
	}
	if v == Desktop {
		plugins = append(plugins, windowstate.New(windowstate.Options{
			Logger:     deps.Logger,
			Registerer: deps.Registerer,
			Dir:        deps.StateDir,
		}))
	}
	return plugins
}
