// Package builder collects capability plugins and turns them, together with
// the embedded configuration, into an immutable Runtime.
package builder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/weatherdesk/internal/appconfig"
	"yashubustudio/weatherdesk/internal/capability"
	"yashubustudio/weatherdesk/internal/platform"
)

type Option func(*Builder)

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func WithRegisterer(r prometheus.Registerer) Option {
	return func(b *Builder) { b.registerer = r }
}

func WithVariant(v platform.Variant) Option {
	return func(b *Builder) { b.variant = v }
}

// Builder accumulates plugins in registration order. It performs no
// deduplication; duplicate names are rejected by Finalize.
type Builder struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	variant    platform.Variant

	plugins   []capability.Plugin
	finalized bool
}

func New(opts ...Option) *Builder {
	b := &Builder{variant: platform.Current()}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Register appends p. It fails once the builder has been finalized.
func (b *Builder) Register(p capability.Plugin) error {
	if b.finalized {
		return ErrFinalized
	}
	if p == nil {
		return errors.New("builder: nil plugin")
	}
	b.plugins = append(b.plugins, p)
	return nil
}

// Plugins lists registered plugin names in order.
func (b *Builder) Plugins() []string {
	names := make([]string, 0, len(b.plugins))
	for _, p := range b.plugins {
		names = append(names, p.Name())
	}
	return names
}

// Finalize consumes the builder. Whatever the outcome, the builder cannot
// be used again.
func (b *Builder) Finalize(embedded []byte) (*Runtime, error) {
	if b.finalized {
		return nil, ErrFinalized
	}
	b.finalized = true
	plugins := b.plugins
	b.plugins = nil

	cfg, err := appconfig.Parse(embedded)
	if err != nil {
		return nil, &ConfigurationError{Reason: "malformed embedded configuration", Err: err}
	}

	byName := make(map[string]capability.Plugin, len(plugins))
	commands := make(map[string]map[string]capability.Command, len(plugins))
	for _, p := range plugins {
		name := p.Name()
		if _, dup := byName[name]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("plugin %q registered twice", name)}
		}
		byName[name] = p
		commands[name] = p.Commands()
	}

	if _, ok := byName[capability.WindowStatePlugin]; !ok {
		for _, w := range cfg.App.Windows {
			if w.PersistGeometry {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("window %q requires persisted geometry but %s is not registered on %s", w.Label, capability.WindowStatePlugin, b.variant)}
			}
		}
	}

	grants, err := resolveGrants(cfg, b.variant, commands)
	if err != nil {
		return nil, &ConfigurationError{Reason: "capabilities", Err: err}
	}

	env := capability.Env{Identifier: cfg.Identifier, Windows: cfg.WindowSpecs()}
	for _, p := range plugins {
		if err := p.Configure(cfg.PluginSection(p.Name()), env); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("plugin %q", p.Name()), Err: err}
		}
	}
	for name := range cfg.Plugins {
		if _, ok := byName[name]; !ok {
			b.logger.Debug("ignoring config for unregistered plugin", "plugin", name, "variant", b.variant)
		}
	}

	rt := newRuntime(runtimeParams{
		variant:    b.variant,
		cfg:        cfg,
		plugins:    plugins,
		commands:   commands,
		grants:     grants,
		logger:     b.logger,
		registerer: b.registerer,
	})
	b.logger.Info("runtime configured",
		"identifier", cfg.Identifier,
		"variant", b.variant,
		"plugins", rt.Plugins(),
	)
	return rt, nil
}

// grant is a capability resolved for the running variant.
type grant struct {
	identifier  string
	source      appconfig.Capability
	permissions []appconfig.Permission
}

func resolveGrants(cfg *appconfig.Config, v platform.Variant, commands map[string]map[string]capability.Command) ([]grant, error) {
	var grants []grant
	for _, cp := range cfg.Capabilities {
		if !cp.AppliesTo(v) {
			continue
		}
		g := grant{identifier: cp.Identifier, source: cp}
		for _, raw := range cp.Permissions {
			perm, err := appconfig.ParsePermission(raw)
			if err != nil {
				return nil, fmt.Errorf("capability %q: %w", cp.Identifier, err)
			}
			cmds, ok := commands[perm.Plugin]
			if !ok {
				return nil, fmt.Errorf("capability %q: permission %q references plugin %q which is not registered on %s", cp.Identifier, raw, perm.Plugin, v)
			}
			if !perm.All() {
				if _, ok := cmds[perm.Command]; !ok {
					return nil, fmt.Errorf("capability %q: plugin %q has no command %q", cp.Identifier, perm.Plugin, perm.Command)
				}
			}
			g.permissions = append(g.permissions, perm)
		}
		grants = append(grants, g)
	}
	return grants, nil
}
