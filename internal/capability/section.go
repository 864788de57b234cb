package capability

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DecodeSection decodes a plugin's config section into out, rejecting keys
// out does not declare. A nil section leaves out untouched.
func DecodeSection(section *yaml.Node, out any) error {
	if section == nil {
		return nil
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("encode section: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
