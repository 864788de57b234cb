package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/weatherdesk/internal/appconfig"
	"yashubustudio/weatherdesk/internal/capability"
	"yashubustudio/weatherdesk/internal/platform"
)

var (
	ErrUnknownCommand   = errors.New("runtime: unknown command")
	ErrPermissionDenied = errors.New("runtime: permission denied")
)

// Loop is the blocking event loop that owns windows. The caller starts it
// through Runtime.Start and, once that succeeds, calls Run; Run blocks for
// the lifetime of the process and returns after Exiting has fanned out.
type Loop interface {
	// Start acquires OS resources and creates the configured windows.
	Start(rt *Runtime) error
	// Run blocks until the application shuts down.
	Run()
}

type runtimeParams struct {
	variant    platform.Variant
	cfg        *appconfig.Config
	plugins    []capability.Plugin
	commands   map[string]map[string]capability.Command
	grants     []grant
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// Runtime is the finalized application configuration. The plugin set and
// the embedded configuration never change after Finalize.
type Runtime struct {
	variant  platform.Variant
	cfg      *appconfig.Config
	plugins  []capability.Plugin
	commands map[string]map[string]capability.Command
	grants   []grant
	logger   *slog.Logger

	invocations *prometheus.CounterVec
	exitOnce    sync.Once
}

func newRuntime(p runtimeParams) *Runtime {
	rt := &Runtime{
		variant:  p.variant,
		cfg:      p.cfg,
		plugins:  p.plugins,
		commands: p.commands,
		grants:   p.grants,
		logger:   p.logger,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Name:      "invocations_total",
			Help:      "Frontend command invocations by plugin, command and outcome.",
		}, []string{"plugin", "command", "outcome"}),
	}
	if p.registerer != nil {
		if err := p.registerer.Register(rt.invocations); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					rt.invocations = existing
				}
			} else {
				rt.logger.Warn("register metrics", "err", err)
			}
		}
	}
	return rt
}

func (rt *Runtime) Identifier() string        { return rt.cfg.Identifier }
func (rt *Runtime) ProductName() string       { return rt.cfg.ProductName }
func (rt *Runtime) Version() string           { return rt.cfg.Version }
func (rt *Runtime) Variant() platform.Variant { return rt.variant }
func (rt *Runtime) Logger() *slog.Logger      { return rt.logger }

// Windows returns a copy of the window definitions.
func (rt *Runtime) Windows() []appconfig.Window {
	return append([]appconfig.Window(nil), rt.cfg.App.Windows...)
}

// Plugins returns plugin names in registration order.
func (rt *Runtime) Plugins() []string {
	names := make([]string, 0, len(rt.plugins))
	for _, p := range rt.plugins {
		names = append(names, p.Name())
	}
	return names
}

func (rt *Runtime) HasPlugin(name string) bool {
	_, ok := rt.Plugin(name)
	return ok
}

func (rt *Runtime) Plugin(name string) (capability.Plugin, bool) {
	for _, p := range rt.plugins {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Start hands the runtime to loop. Any failure is a LoopStartError.
func (rt *Runtime) Start(loop Loop) error {
	if err := loop.Start(rt); err != nil {
		return &LoopStartError{Err: err}
	}
	return nil
}

// Invoke dispatches a frontend call of the form "plugin:<name>|<command>"
// made from the window labelled window.
func (rt *Runtime) Invoke(ctx context.Context, window, command string, payload json.RawMessage) (json.RawMessage, error) {
	plugin, cmd, err := parseCommand(command)
	if err != nil {
		return nil, err
	}
	handler, ok := rt.commands[plugin][cmd]
	if !ok {
		rt.invocations.WithLabelValues(plugin, cmd, "unknown").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
	if !rt.allowed(window, plugin, cmd) {
		rt.invocations.WithLabelValues(plugin, cmd, "denied").Inc()
		return nil, fmt.Errorf("%w: %s from window %q", ErrPermissionDenied, command, window)
	}

	call := capability.Call{RequestID: uuid.NewString(), Window: window, Payload: payload}
	logger := rt.logger.With("request", call.RequestID, "plugin", plugin, "command", cmd)
	result, err := handler(ctx, call)
	if err != nil {
		rt.invocations.WithLabelValues(plugin, cmd, "error").Inc()
		logger.Debug("invoke failed", "err", err)
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		rt.invocations.WithLabelValues(plugin, cmd, "error").Inc()
		return nil, fmt.Errorf("encode %s result: %w", command, err)
	}
	rt.invocations.WithLabelValues(plugin, cmd, "ok").Inc()
	logger.Debug("invoked")
	return out, nil
}

func (rt *Runtime) allowed(window, plugin, cmd string) bool {
	for _, g := range rt.grants {
		if !g.source.CoversWindow(window) {
			continue
		}
		for _, perm := range g.permissions {
			if perm.Allows(plugin, cmd) {
				return true
			}
		}
	}
	return false
}

func parseCommand(command string) (string, string, error) {
	rest, ok := strings.CutPrefix(command, "plugin:")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	plugin, cmd, ok := strings.Cut(rest, "|")
	if !ok || plugin == "" || cmd == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	return plugin, cmd, nil
}

// WindowCreated is called by the loop after it creates a window.
func (rt *Runtime) WindowCreated(w capability.Window) {
	rt.logger.Debug("window created", "window", w.Label())
	for _, o := range rt.observers() {
		o.WindowCreated(w)
	}
}

// WindowClosing is called by the loop before a window closes.
func (rt *Runtime) WindowClosing(w capability.Window) {
	rt.logger.Debug("window closing", "window", w.Label())
	for _, o := range rt.observers() {
		o.WindowClosing(w)
	}
}

// Exiting is called by the loop once when the application stops. Later
// calls are ignored.
func (rt *Runtime) Exiting() {
	rt.exitOnce.Do(func() {
		rt.logger.Debug("exiting")
		for _, o := range rt.observers() {
			o.Exiting()
		}
	})
}

func (rt *Runtime) observers() []capability.WindowObserver {
	var out []capability.WindowObserver
	for _, p := range rt.plugins {
		if o, ok := p.(capability.WindowObserver); ok {
			out = append(out, o)
		}
	}
	return out
}
