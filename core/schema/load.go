package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a schema definition from a YAML file.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a schema from YAML bytes.
func Parse(data []byte) (*Info, error) {
	var def struct {
		Entities   []*EntityInfo `yaml:"entities"`
		Shortcodes []Shortcode   `yaml:"shortcodes"`
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return New(def.Entities, def.Shortcodes)
}

// LoadOrDefault loads the schema at path, or returns the built-in WordPress
// schema when path is empty.
func LoadOrDefault(path string) (*Info, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
