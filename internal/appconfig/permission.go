package appconfig

import (
	"fmt"
	"strings"
)

// Permission is a parsed "<plugin>:allow-<command>" or "<plugin>:default"
// string.
type Permission struct {
	Plugin  string
	Command string // empty for the default set
}

// All reports whether the permission grants every command of the plugin.
func (p Permission) All() bool {
	return p.Command == ""
}

// Allows reports whether the permission grants plugin/command.
func (p Permission) Allows(plugin, command string) bool {
	if p.Plugin != plugin {
		return false
	}
	return p.All() || p.Command == command
}

func (p Permission) String() string {
	if p.All() {
		return p.Plugin + ":default"
	}
	return p.Plugin + ":allow-" + strings.ReplaceAll(p.Command, "_", "-")
}

// ParsePermission parses a permission string. Dashes in the command part
// map to underscores so "allow-save-window-state" grants
// "save_window_state".
func ParsePermission(s string) (Permission, error) {
	plugin, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || plugin == "" || rest == "" {
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}
	if rest == "default" {
		return Permission{Plugin: plugin}, nil
	}
	cmd, ok := strings.CutPrefix(rest, "allow-")
	if !ok || cmd == "" {
		return Permission{}, fmt.Errorf("malformed permission %q: expected allow-<command> or default", s)
	}
	return Permission{Plugin: plugin, Command: strings.ReplaceAll(cmd, "-", "_")}, nil
}
