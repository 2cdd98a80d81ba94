package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resource is the schema-level description of one resource type.
type Resource struct {
	// Name is the resource type name, e.g. "User".
	Name string `json:"name" yaml:"name"`

	// Attributes lists attribute names in declaration order.
	Attributes []string `json:"attributes" yaml:"attributes"`

	// UniquenessKey is the explicitly declared key, if any.
	UniquenessKey []string `json:"uniqueness_key,omitempty" yaml:"uniqueness_key,omitempty"`

	// Constraints are structural uniqueness constraints in declaration order.
	Constraints [][]string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// HasAttribute reports whether name is a declared attribute.
func (r Resource) HasAttribute(name string) bool {
	for _, a := range r.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Schema is an ordered set of resource types.
type Schema struct {
	Resources []Resource `json:"resources" yaml:"resources"`
}

// Lookup returns the resource with the given name.
func (s *Schema) Lookup(name string) (Resource, bool) {
	for _, r := range s.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Names returns resource names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Resources))
	for i, r := range s.Resources {
		names[i] = r.Name
	}
	return names
}

// validate rejects structural mistakes that make a schema unusable as a whole.
// Per-resource key problems are not errors here; the registry downgrades those.
func (s *Schema) validate() error {
	seen := make(map[string]bool, len(s.Resources))
	for i, r := range s.Resources {
		if r.Name == "" {
			return &LoadError{Field: fmt.Sprintf("resources[%d].name", i), Message: "resource name is required"}
		}
		if seen[r.Name] {
			return &LoadError{Field: "resource." + r.Name, Message: "duplicate resource name"}
		}
		seen[r.Name] = true
	}
	return nil
}

// Load reads a schema from a .cue file, a .yaml/.yml file, or a directory of CUE files.
func Load(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Field: "path", Message: fmt.Sprintf("schema not found: %v", err)}
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Field: "path", Message: fmt.Sprintf("read schema: %v", err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return ParseCUE(path, data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, &LoadError{Field: "path", Message: fmt.Sprintf("unsupported schema file extension %q", filepath.Ext(path))}
	}
}
