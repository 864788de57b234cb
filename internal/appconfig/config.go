// Package appconfig parses the configuration bundle that is generated at
// build time and embedded into the binary.
package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"yashubustudio/weatherdesk/internal/capability"
	"yashubustudio/weatherdesk/internal/platform"
)

const (
	defaultWindowWidth  = 800
	defaultWindowHeight = 600
	defaultVersion      = "0.0.0"
)

var (
	labelPattern      = regexp.MustCompile(`^[A-Za-z0-9_:/-]+$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)
)

type Config struct {
	Identifier   string               `yaml:"identifier"`
	ProductName  string               `yaml:"productName"`
	Version      string               `yaml:"version"`
	App          AppSection           `yaml:"app"`
	Capabilities []Capability         `yaml:"capabilities"`
	Plugins      map[string]yaml.Node `yaml:"plugins"`
}

type AppSection struct {
	Windows []Window `yaml:"windows"`
}

type Window struct {
	Label           string `yaml:"label"`
	Title           string `yaml:"title"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	MinWidth        int    `yaml:"minWidth"`
	MinHeight       int    `yaml:"minHeight"`
	Resizable       *bool  `yaml:"resizable"`
	Fullscreen      bool   `yaml:"fullscreen"`
	Center          bool   `yaml:"center"`
	PersistGeometry bool   `yaml:"persistGeometry"`
}

// IsResizable reports the effective resizable flag; windows are resizable
// unless the config says otherwise.
func (w Window) IsResizable() bool {
	return w.Resizable == nil || *w.Resizable
}

// Spec converts the definition into what plugins see.
func (w Window) Spec() capability.WindowSpec {
	return capability.WindowSpec{
		Label: w.Label,
		Default: capability.Geometry{
			Width:      w.Width,
			Height:     w.Height,
			Fullscreen: w.Fullscreen,
		},
	}
}

// Capability grants a set of permissions to a set of windows, optionally
// only on some platforms.
type Capability struct {
	Identifier  string   `yaml:"identifier"`
	Description string   `yaml:"description"`
	Windows     []string `yaml:"windows"`
	Platforms   []string `yaml:"platforms"`
	Permissions []string `yaml:"permissions"`
}

// AppliesTo reports whether the grant is active on the variant.
func (c Capability) AppliesTo(v platform.Variant) bool {
	if len(c.Platforms) == 0 {
		return true
	}
	for _, p := range c.Platforms {
		if pv, err := platform.ParseVariant(p); err == nil && pv == v {
			return true
		}
	}
	return false
}

// CoversWindow reports whether the grant applies to the window label.
// "*" matches every window.
func (c Capability) CoversWindow(label string) bool {
	for _, w := range c.Windows {
		if w == "*" || w == label {
			return true
		}
	}
	return false
}

// Parse decodes, defaults and validates an embedded bundle.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("configuration is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("configuration is empty")
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values and normalises labels. Explicit
// sizes, including invalid ones, are left for Validate.
func (c *Config) ApplyDefaults() {
	c.Identifier = strings.TrimSpace(c.Identifier)
	c.ProductName = strings.TrimSpace(c.ProductName)
	c.Version = strings.TrimSpace(c.Version)
	if c.Version == "" {
		c.Version = defaultVersion
	}
	for i := range c.App.Windows {
		w := &c.App.Windows[i]
		w.Label = normalizeLabel(w.Label)
		if w.Width == 0 {
			w.Width = defaultWindowWidth
		}
		if w.Height == 0 {
			w.Height = defaultWindowHeight
		}
		if w.Title == "" {
			w.Title = c.ProductName
		}
	}
	for i := range c.Capabilities {
		cp := &c.Capabilities[i]
		for j := range cp.Windows {
			if cp.Windows[j] != "*" {
				cp.Windows[j] = normalizeLabel(cp.Windows[j])
			}
		}
		for j := range cp.Permissions {
			cp.Permissions[j] = strings.TrimSpace(cp.Permissions[j])
		}
	}
}

// Validate checks the bundle on its own. Consistency with the registered
// plugins is checked by the builder.
func (c *Config) Validate() error {
	if c.Identifier == "" {
		return errors.New("identifier is required")
	}
	if !identifierPattern.MatchString(c.Identifier) {
		return fmt.Errorf("identifier %q is not in reverse domain notation", c.Identifier)
	}
	if c.ProductName == "" {
		return errors.New("productName is required")
	}
	if len(c.App.Windows) == 0 {
		return errors.New("app.windows must define at least one window")
	}
	labels := make(map[string]struct{}, len(c.App.Windows))
	for i, w := range c.App.Windows {
		if !labelPattern.MatchString(w.Label) {
			return fmt.Errorf("app.windows[%d]: invalid label %q", i, w.Label)
		}
		if _, dup := labels[w.Label]; dup {
			return fmt.Errorf("app.windows[%d]: duplicate label %q", i, w.Label)
		}
		labels[w.Label] = struct{}{}
		if w.Width <= 0 || w.Height <= 0 {
			return fmt.Errorf("window %q: size %dx%d must be positive", w.Label, w.Width, w.Height)
		}
		if w.MinWidth < 0 || w.MinHeight < 0 {
			return fmt.Errorf("window %q: minimum size must not be negative", w.Label)
		}
		if w.MinWidth > w.Width || w.MinHeight > w.Height {
			return fmt.Errorf("window %q: size %dx%d is below its minimum %dx%d", w.Label, w.Width, w.Height, w.MinWidth, w.MinHeight)
		}
	}
	ids := make(map[string]struct{}, len(c.Capabilities))
	for i, cp := range c.Capabilities {
		if strings.TrimSpace(cp.Identifier) == "" {
			return fmt.Errorf("capabilities[%d]: identifier is required", i)
		}
		if _, dup := ids[cp.Identifier]; dup {
			return fmt.Errorf("capabilities[%d]: duplicate identifier %q", i, cp.Identifier)
		}
		ids[cp.Identifier] = struct{}{}
		for _, p := range cp.Platforms {
			if _, err := platform.ParseVariant(p); err != nil {
				return fmt.Errorf("capability %q: %w", cp.Identifier, err)
			}
		}
		for _, w := range cp.Windows {
			if w == "*" {
				continue
			}
			if _, ok := labels[w]; !ok {
				return fmt.Errorf("capability %q: unknown window %q", cp.Identifier, w)
			}
		}
		for _, p := range cp.Permissions {
			if _, err := ParsePermission(p); err != nil {
				return fmt.Errorf("capability %q: %w", cp.Identifier, err)
			}
		}
	}
	return nil
}

// Window returns the definition with the given label.
func (c *Config) Window(label string) (Window, bool) {
	for _, w := range c.App.Windows {
		if w.Label == label {
			return w, true
		}
	}
	return Window{}, false
}

// WindowSpecs returns the plugin view of every window.
func (c *Config) WindowSpecs() []capability.WindowSpec {
	out := make([]capability.WindowSpec, 0, len(c.App.Windows))
	for _, w := range c.App.Windows {
		out = append(out, w.Spec())
	}
	return out
}

// PluginSection returns the raw section for a plugin, or nil.
func (c *Config) PluginSection(name string) *yaml.Node {
	node, ok := c.Plugins[name]
	if !ok {
		return nil
	}
	return &node
}

func normalizeLabel(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}
