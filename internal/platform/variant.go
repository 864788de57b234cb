// Package platform decides which capabilities a build target carries.
package platform

import (
	"fmt"
	"strings"
)

// Variant is the build target family. It is fixed per build.
type Variant int

const (
	Desktop Variant = iota
	Mobile
)

func (v Variant) String() string {
	switch v {
	case Desktop:
		return "desktop"
	case Mobile:
		return "mobile"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant accepts the names produced by String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desktop":
		return Desktop, nil
	case "mobile":
		return Mobile, nil
	default:
		return 0, fmt.Errorf("unknown platform %q", s)
	}
}
