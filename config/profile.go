package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a named set of endpoints, typically one input and several
// outputs, loaded from a single YAML document.
type Profile struct {
	SchemaVersion string     `yaml:"schema_version"`
	Endpoints     []Endpoint `yaml:"endpoints"`
}

// LoadProfile parses a profile YAML and validates schema_version and every
// endpoint in it.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.SchemaVersion == "" {
		p.SchemaVersion = SupportedSchema
	}
	if p.SchemaVersion != SupportedSchema {
		return p, fmt.Errorf("profile schema_version %q not supported (want %q)", p.SchemaVersion, SupportedSchema)
	}
	if len(p.Endpoints) == 0 {
		return p, errors.New("profile: no endpoints defined")
	}
	seen := make(map[string]bool, len(p.Endpoints))
	for _, e := range p.Endpoints {
		if err := e.Validate(); err != nil {
			return p, err
		}
		if e.Name != "" && seen[e.Name] {
			return p, fmt.Errorf("profile: duplicate endpoint name %q", e.Name)
		}
		seen[e.Name] = true
	}
	return p, nil
}
