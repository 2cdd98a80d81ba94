package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML schema document.
func ParseYAML(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &LoadError{Field: "yaml", Message: fmt.Sprintf("parse schema: %v", err)}
	}
	if len(s.Resources) == 0 {
		return nil, &LoadError{Field: "resources", Message: "no resources declared"}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
