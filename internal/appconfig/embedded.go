package appconfig

import _ "embed"

//go:embed app.yaml
var embedded []byte

// Embedded returns a copy of the configuration bundle compiled into the
// binary.
func Embedded() []byte {
	return append([]byte(nil), embedded...)
}
