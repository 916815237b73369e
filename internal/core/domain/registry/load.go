package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the serialized CobaltConfig this package's doc comment
// refers to: a plain YAML list of customers, decoded field-for-field into
// the domain types below so there is exactly one shape to keep in sync.
type configFile struct {
	Customers []Customer `yaml:"customers"`
}

// LoadConfig reads a YAML-encoded CobaltConfig from path and builds a
// Registry from it. This is the on-disk counterpart to New, used by the
// agent's entry point at startup; tests construct a Registry directly with
// New instead of going through a file.
func LoadConfig(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read config %s: %w", path, err)
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("registry: failed to parse config %s: %w", path, err)
	}

	return New(cf.Customers), nil
}
