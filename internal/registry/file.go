package registry

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ParseFile decodes a monitors file. Unknown top-level and entry fields are
// rejected; target contents are checked later by Load.
func ParseFile(data []byte) ([]Entry, error) {
	var f File
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := yaml.NewDecoder(bytes.NewReader(data), yaml.DisallowUnknownField()).Decode(&f); err != nil {
		return nil, &ConfigError{err: fmt.Errorf("decode monitors file: %w", err)}
	}
	return f.Monitors, nil
}

// LoadFile reads, decodes and validates the monitors file at path.
func LoadFile(path string) (*Registry, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(entries)
}

// ReadFile reads and decodes the monitors file at path without validating it.
func ReadFile(path string) ([]Entry, error) {
	if path == "" {
		return nil, &ConfigError{err: ErrEmptyConfigPath}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{err: fmt.Errorf("read %s: %w", path, err)}
	}
	return ParseFile(data)
}
