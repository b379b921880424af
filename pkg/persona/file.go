package persona

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// FromFile reads and validates a descriptor from a YAML file.
func FromFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("persona: parse %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("persona: %s: %w", path, err)
	}
	return &d, nil
}

// ToFile writes a descriptor as YAML.
func ToFile(path string, d *Descriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("persona: encode %s: %w", d.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persona: write %s: %w", path, err)
	}
	return nil
}
