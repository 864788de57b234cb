// Package windowstate remembers window geometry between runs.
package windowstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"yashubustudio/weatherdesk/internal/capability"
)

// Name is the plugin name used in permissions and config sections.
const Name = capability.WindowStatePlugin

const defaultFilename = ".window-state.json"

var ErrUnknownWindow = errors.New("window-state: unknown window")

type Options struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// Dir overrides the directory holding the state file. By default it is
	// the user config dir joined with the application identifier.
	Dir string
}

type sectionConfig struct {
	Filename string   `yaml:"filename"`
	Denylist []string `yaml:"denylist"`
}

// Plugin is the window-state persistence capability.
type Plugin struct {
	logger *slog.Logger
	saves  *prometheus.CounterVec
	dir    string

	mu       sync.Mutex
	store    store
	denied   map[string]struct{}
	defaults map[string]capability.Geometry
	records  map[string]capability.Geometry
	windows  map[string]capability.Window
}

func New(opts Options) *Plugin {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Plugin{
		logger: logger.With("plugin", Name),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdesk",
			Subsystem: "window_state",
			Name:      "saves_total",
			Help:      "Window state writes by outcome.",
		}, []string{"outcome"}),
		dir:     opts.Dir,
		windows: map[string]capability.Window{},
	}
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(p.saves); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					p.saves = existing
				}
			} else {
				p.logger.Warn("register metrics", "err", err)
			}
		}
	}
	return p
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Configure(section *yaml.Node, env capability.Env) error {
	var cfg sectionConfig
	if err := capability.DecodeSection(section, &cfg); err != nil {
		return fmt.Errorf("decode window-state config: %w", err)
	}
	filename := strings.TrimSpace(cfg.Filename)
	if filename == "" {
		filename = defaultFilename
	}
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return fmt.Errorf("filename %q must not contain a path", cfg.Filename)
	}
	dir := p.dir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}
		dir = filepath.Join(base, env.Identifier)
	}

	denied := make(map[string]struct{}, len(cfg.Denylist))
	for _, label := range cfg.Denylist {
		denied[label] = struct{}{}
	}
	defaults := make(map[string]capability.Geometry, len(env.Windows))
	for _, w := range env.Windows {
		defaults[w.Label] = w.Default
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store{path: filepath.Join(dir, filename)}
	p.denied = denied
	p.defaults = defaults
	p.records = nil
	return nil
}

func (p *Plugin) Commands() map[string]capability.Command {
	return map[string]capability.Command{
		"save_window_state": p.handleSave,
		"restore_state":     p.handleRestore,
		"filename":          p.handleFilename,
	}
}

// Path returns the state file location.
func (p *Plugin) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.path
}

// Save writes the current geometry of the tracked window label.
func (p *Plugin) Save(label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWindow, label)
	}
	if err := p.loadLocked(); err != nil {
		p.saves.WithLabelValues("error").Inc()
		return err
	}
	p.records[label] = w.Geometry()
	return p.flushLocked()
}

// Restore returns the saved geometry for label, or the embedded default
// when nothing was saved, and applies it to the window if it is tracked.
func (p *Plugin) Restore(label string) (capability.Geometry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		p.logger.Warn("read window state", "path", p.store.path, "err", err)
	}
	def, hasDefault := p.defaults[label]
	g, saved := p.records[label]
	switch {
	case saved && g.Width > 0 && g.Height > 0:
	case hasDefault:
		g = def
	default:
		return capability.Geometry{}, fmt.Errorf("%w: %q", ErrUnknownWindow, label)
	}
	if w, ok := p.windows[label]; ok {
		w.SetGeometry(g)
	}
	return g, nil
}

// WindowCreated starts tracking w and restores its geometry.
func (p *Plugin) WindowCreated(w capability.Window) {
	label := w.Label()
	p.mu.Lock()
	_, denied := p.denied[label]
	if !denied {
		p.windows[label] = w
	}
	p.mu.Unlock()
	if denied {
		return
	}
	if _, err := p.Restore(label); err != nil {
		p.logger.Warn("restore window state", "window", label, "err", err)
	}
}

// WindowClosing saves w and stops tracking it. Write errors are logged so
// closing is never blocked.
func (p *Plugin) WindowClosing(w capability.Window) {
	label := w.Label()
	if err := p.Save(label); err != nil && !errors.Is(err, ErrUnknownWindow) {
		p.logger.Warn("save window state", "window", label, "err", err)
	}
	p.mu.Lock()
	delete(p.windows, label)
	p.mu.Unlock()
}

// Exiting saves every window still open.
func (p *Plugin) Exiting() {
	if err := p.saveAll(); err != nil {
		p.logger.Warn("save window state on exit", "err", err)
	}
}

func (p *Plugin) saveAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.windows) == 0 {
		return nil
	}
	if err := p.loadLocked(); err != nil {
		p.saves.WithLabelValues("error").Inc()
		return err
	}
	for label, w := range p.windows {
		p.records[label] = w.Geometry()
	}
	return p.flushLocked()
}

// loadLocked reads the state file once. When the file exists but cannot be
// read the records stay unloaded and the error is returned, so nothing is
// written over it and the next call retries.
func (p *Plugin) loadLocked() error {
	if p.records != nil {
		return nil
	}
	records, err := p.store.load()
	if records == nil {
		return err
	}
	if err != nil {
		p.logger.Warn("discarding corrupt window state", "path", p.store.path, "err", err)
	}
	p.records = records
	return nil
}

func (p *Plugin) flushLocked() error {
	if err := p.store.save(p.records); err != nil {
		p.saves.WithLabelValues("error").Inc()
		return err
	}
	p.saves.WithLabelValues("ok").Inc()
	return nil
}

// Tracked lists the labels of windows being followed, sorted.
func (p *Plugin) Tracked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.windows))
	for label := range p.windows {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func (p *Plugin) handleSave(context.Context, capability.Call) (any, error) {
	return nil, p.saveAll()
}

type restoreArgs struct {
	Label string `json:"label"`
}

func (p *Plugin) handleRestore(_ context.Context, call capability.Call) (any, error) {
	req := restoreArgs{Label: call.Window}
	if len(call.Payload) > 0 {
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode restore args: %w", err)
		}
		if req.Label == "" {
			req.Label = call.Window
		}
	}
	return p.Restore(req.Label)
}

func (p *Plugin) handleFilename(context.Context, capability.Call) (any, error) {
	return filepath.Base(p.Path()), nil
}
