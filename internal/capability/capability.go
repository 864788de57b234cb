// Package capability defines the contract between the application builder
// and the platform integrations it wires in.
package capability

import (
	"context"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Plugin names the builder and the platform selector refer to.
const (
	ShellPlugin       = "shell"
	WindowStatePlugin = "window-state"
)

// Plugin is a self-contained platform integration.
type Plugin interface {
	// Name identifies the plugin in permissions and config sections.
	Name() string
	// Configure receives the plugin's section of the embedded config.
	// section is nil when the config has no entry for the plugin.
	Configure(section *yaml.Node, env Env) error
	// Commands lists the commands the plugin exposes to the frontend.
	Commands() map[string]Command
}

// Command handles one frontend invocation. The payload is the raw JSON
// argument object; the result is marshalled back to the caller.
type Command func(ctx context.Context, call Call) (any, error)

// Call carries a single invocation.
type Call struct {
	RequestID string
	Window    string
	Payload   json.RawMessage
}

// Env is what a plugin learns about the application during configuration.
type Env struct {
	Identifier string
	Windows    []WindowSpec
}

// WindowSpec is the embedded definition of a window as plugins see it.
type WindowSpec struct {
	Label   string
	Default Geometry
}

// Geometry is the persisted shape of a window.
type Geometry struct {
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Maximized  bool `json:"maximized"`
	Fullscreen bool `json:"fullscreen"`
}

// Window is a live window owned by the run loop.
type Window interface {
	Label() string
	Geometry() Geometry
	SetGeometry(Geometry)
}

// WindowObserver is implemented by plugins that follow window lifecycle.
type WindowObserver interface {
	WindowCreated(w Window)
	WindowClosing(w Window)
	Exiting()
}
