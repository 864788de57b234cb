package windowstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"yashubustudio/weatherdesk/internal/capability"
)

// store persists geometry records as one JSON object keyed by label.
type store struct {
	path string
}

// load returns the saved records. A missing file is empty. A file that
// cannot be read returns nil records so the caller does not overwrite it;
// a file that reads but does not decode returns empty records and an
// error, and is replaced on the next save.
func (s store) load() (map[string]capability.Geometry, error) {
	records := make(map[string]capability.Geometry)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return records, nil
		}
		return nil, fmt.Errorf("read window state: %w", err)
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return make(map[string]capability.Geometry), fmt.Errorf("decode window state: %w", err)
	}
	return records, nil
}

func (s store) save(records map[string]capability.Geometry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode window state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp window state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename window state: %w", err)
	}
	return nil
}
