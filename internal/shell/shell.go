// Package shell lets the frontend run allow-listed programs and open URLs
// with the platform's default handler.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"yashubustudio/weatherdesk/internal/capability"
)

// Name is the plugin name used in permissions and config sections.
const Name = capability.ShellPlugin

var (
	ErrNotAllowed  = errors.New("shell: not allowed by scope")
	ErrRateLimited = errors.New("shell: rate limited")
)

// Options configures a Plugin.
type Options struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Plugin is the command-execution capability.
type Plugin struct {
	logger   *slog.Logger
	commands *prometheus.CounterVec

	mu       sync.Mutex
	open     openSetting
	scope    map[string]ScopeEntry
	limiters map[string]*rate.Limiter

	runner runner
	opener func(ctx context.Context, target string) error
}

// New returns an unconfigured plugin; nothing is allowed until Configure
// loads a scope.
func New(opts Options) *Plugin {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Plugin{
		logger: logger.With("plugin", Name),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Subsystem: "shell",
			Name:      "commands_total",
			Help:      "Shell capability requests by scope entry and outcome.",
		}, []string{"name", "outcome"}),
		scope:  map[string]ScopeEntry{},
		runner: execRunner{},
	}
	p.opener = p.openWithSystem
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(p.commands); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					p.commands = existing
				}
			} else {
				p.logger.Warn("register metrics", "err", err)
			}
		}
	}
	return p
}

func (p *Plugin) Name() string { return Name }

// Configure loads the allow-list. A missing section leaves everything
// denied.
func (p *Plugin) Configure(section *yaml.Node, _ capability.Env) error {
	var cfg sectionConfig
	if err := capability.DecodeSection(section, &cfg); err != nil {
		return fmt.Errorf("decode shell config: %w", err)
	}
	scope := make(map[string]ScopeEntry, len(cfg.Scope))
	for i, entry := range cfg.Scope {
		if entry.Name == "" {
			return fmt.Errorf("scope[%d]: name is required", i)
		}
		if entry.Cmd == "" {
			return fmt.Errorf("scope %q: cmd is required", entry.Name)
		}
		if _, dup := scope[entry.Name]; dup {
			return fmt.Errorf("scope %q: duplicate name", entry.Name)
		}
		scope[entry.Name] = entry
	}
	var limiters map[string]*rate.Limiter
	if rl := cfg.RateLimit; rl != nil {
		if rl.PerSecond <= 0 || rl.Burst <= 0 {
			return fmt.Errorf("rateLimit: perSecond and burst must be positive")
		}
		limiters = make(map[string]*rate.Limiter, len(scope))
		for name := range scope {
			limiters[name] = rate.NewLimiter(rate.Limit(rl.PerSecond), rl.Burst)
		}
	}

	p.mu.Lock()
	p.open = cfg.Open
	p.scope = scope
	p.limiters = limiters
	p.mu.Unlock()
	p.logger.Debug("scope loaded", "entries", len(scope))
	return nil
}

func (p *Plugin) Commands() map[string]capability.Command {
	return map[string]capability.Command{
		"execute": p.handleExecute,
		"open":    p.handleOpen,
	}
}

// Execute runs the scope entry called name and waits for it to exit. A
// non-zero exit status is reported in Output, not as an error.
func (p *Plugin) Execute(ctx context.Context, name string, args []string) (Output, error) {
	p.mu.Lock()
	entry, ok := p.scope[name]
	lim := p.limiters[name]
	p.mu.Unlock()
	if !ok {
		p.count(name, "denied")
		return Output{}, fmt.Errorf("%w: unknown program %q", ErrNotAllowed, name)
	}
	args = entry.Args.resolve(args)
	if err := entry.Args.check(args); err != nil {
		p.count(name, "denied")
		return Output{}, fmt.Errorf("%w: %s: %v", ErrNotAllowed, name, err)
	}
	if lim != nil && !lim.Allow() {
		p.count(name, "limited")
		return Output{}, fmt.Errorf("%w: %s", ErrRateLimited, name)
	}

	out, err := p.runner.run(ctx, entry.Cmd, args)
	if err != nil {
		p.count(name, "error")
		p.logger.Warn("execute failed", "name", name, "err", err)
		return Output{}, fmt.Errorf("execute %s: %w", name, err)
	}
	p.count(name, "ok")
	p.logger.Debug("executed", "name", name, "code", out.Code)
	return out, nil
}

// Open hands target to the platform's default handler when the open
// setting allows it.
func (p *Plugin) Open(ctx context.Context, target string) error {
	p.mu.Lock()
	allowed := p.open.allows(target)
	p.mu.Unlock()
	if !allowed {
		p.count("open", "denied")
		return fmt.Errorf("%w: open %q", ErrNotAllowed, target)
	}
	if err := p.opener(ctx, target); err != nil {
		p.count("open", "error")
		return fmt.Errorf("open %q: %w", target, err)
	}
	p.count("open", "ok")
	return nil
}

func (p *Plugin) count(name, outcome string) {
	p.commands.WithLabelValues(name, outcome).Inc()
}

type executeArgs struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

func (p *Plugin) handleExecute(ctx context.Context, call capability.Call) (any, error) {
	var req executeArgs
	if err := json.Unmarshal(call.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode execute args: %w", err)
	}
	return p.Execute(ctx, req.Name, req.Args)
}

type openArgs struct {
	Path string `json:"path"`
}

func (p *Plugin) handleOpen(ctx context.Context, call capability.Call) (any, error) {
	var req openArgs
	if err := json.Unmarshal(call.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode open args: %w", err)
	}
	return nil, p.Open(ctx, req.Path)
}

func (p *Plugin) openWithSystem(ctx context.Context, target string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin", "ios":
		name, args = "open", []string{target}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		name, args = "xdg-open", []string{target}
	}
	out, err := p.runner.run(ctx, name, args)
	if err != nil {
		return err
	}
	if out.Code != 0 {
		return fmt.Errorf("%s exited with status %d", name, out.Code)
	}
	return nil
}
