package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PropertyType is the declared kind of an entity property
type PropertyType string

const (
	PropertyString   PropertyType = "string"
	PropertyInt      PropertyType = "int"
	PropertyFloat    PropertyType = "float"
	PropertyBool     PropertyType = "bool"
	PropertyDatetime PropertyType = "datetime"
)

func knownPropertyType(t PropertyType) bool {
	switch t {
	case PropertyString, PropertyInt, PropertyFloat, PropertyBool, PropertyDatetime:
		return true
	}
	return false
}

// EntityType declares the properties an entity of this type may carry and
// which of them are required
type EntityType struct {
	Properties map[string]PropertyType `yaml:"properties" json:"properties"`
	Required   []string                `yaml:"required" json:"required"`
}

// RelationType declares the entity types a relation may connect
type RelationType struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Schema is one versioned graph schema document
type Schema struct {
	Name          string                  `yaml:"name" json:"name"`
	Version       int                     `yaml:"version" json:"version"`
	Description   string                  `yaml:"description" json:"description"`
	EntityTypes   map[string]EntityType   `yaml:"entity_types" json:"entity_types"`
	RelationTypes map[string]RelationType `yaml:"relation_types" json:"relation_types"`
}

// Parse reads a YAML schema document and validates its internal consistency
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Marshal renders the schema back to YAML, the payload format the
// registry persists
func (s *Schema) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// Validate checks the schema document itself: names, versions, property
// kinds, required properties that exist, relation endpoints that are
// declared entity types.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	if s.Version < 1 {
		return fmt.Errorf("schema %s: version must be >= 1, got %d", s.Name, s.Version)
	}
	if len(s.EntityTypes) == 0 {
		return fmt.Errorf("schema %s: at least one entity type is required", s.Name)
	}

	for typeName, et := range s.EntityTypes {
		for propName, propType := range et.Properties {
			if !knownPropertyType(propType) {
				return fmt.Errorf("schema %s: entity type %s property %s has unknown kind %q",
					s.Name, typeName, propName, propType)
			}
		}
		for _, req := range et.Required {
			if _, ok := et.Properties[req]; !ok {
				return fmt.Errorf("schema %s: entity type %s requires undeclared property %q",
					s.Name, typeName, req)
			}
		}
	}

	for relName, rt := range s.RelationTypes {
		if _, ok := s.EntityTypes[rt.Source]; !ok {
			return fmt.Errorf("schema %s: relation %s source %q is not a declared entity type",
				s.Name, relName, rt.Source)
		}
		if _, ok := s.EntityTypes[rt.Target]; !ok {
			return fmt.Errorf("schema %s: relation %s target %q is not a declared entity type",
				s.Name, relName, rt.Target)
		}
	}

	return nil
}

// ValidateEntity checks an entity instance against the schema: the type
// must be declared, required properties must be present and every declared
// property that is present must hold the declared kind. Undeclared
// properties pass through; the schema constrains what it names.
func (s *Schema) ValidateEntity(entityType string, props map[string]interface{}) error {
	et, ok := s.EntityTypes[entityType]
	if !ok {
		return fmt.Errorf("entity type %q is not declared in schema %s v%d", entityType, s.Name, s.Version)
	}

	var problems []string
	for _, req := range et.Required {
		if _, present := props[req]; !present {
			problems = append(problems, fmt.Sprintf("missing required property %q", req))
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		declared, isDeclared := et.Properties[name]
		if !isDeclared {
			continue
		}
		if !kindMatches(declared, props[name]) {
			problems = append(problems, fmt.Sprintf("property %q must be %s", name, declared))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("entity of type %s invalid: %s", entityType, strings.Join(problems, "; "))
	}
	return nil
}

// kindMatches accepts the Go representations a property kind can arrive
// as. JSON numbers decode as float64, so int accepts integral floats.
func kindMatches(declared PropertyType, value interface{}) bool {
	switch declared {
	case PropertyString:
		_, ok := value.(string)
		return ok
	case PropertyInt:
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case PropertyFloat:
		switch value.(type) {
		case float32, float64, int, int32, int64:
			return true
		}
		return false
	case PropertyBool:
		_, ok := value.(bool)
		return ok
	case PropertyDatetime:
		switch v := value.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, v)
			return err == nil
		}
		return false
	}
	return false
}

// LoadDir parses every .yaml/.yml schema in a directory, in file-name order
func LoadDir(dir string) ([]*Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	schemas := make([]*Schema, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", name, err)
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}
