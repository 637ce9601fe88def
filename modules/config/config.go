package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("config file not found")

// FromYamlFile decodes the YAML file at path into out. Fields of out that
// the file does not mention keep their current values, so callers pass a
// struct pre-filled with defaults. Unknown keys are rejected.
func FromYamlFile(path string, out interface{}) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	err = dec.Decode(out)
	if errors.Is(err, io.EOF) {
		// empty file, keep defaults
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}
