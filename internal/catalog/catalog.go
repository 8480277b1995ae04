// Package catalog describes the category-specific attributes items carry.
//
// The engine does not manage categories itself. It asks a Provider for the
// schema of a category and validates attributes against it.
package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/erazemk/rezervator/internal/model"
)

// Field is one category-specific attribute.
type Field struct {
	Name     string `yaml:"name"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Schema is the attribute layout of one category.
type Schema struct {
	Category string  `yaml:"name"`
	Fields   []Field `yaml:"fields"`
	// Unique names a field whose value may appear on only one item of the category.
	Unique string `yaml:"unique,omitempty"`
	// SingleUnit categories describe individual things, so total_quantity must be 1.
	SingleUnit bool `yaml:"single_unit,omitempty"`
}

// FieldNames returns the field names in schema order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that every required field is present and non-empty and that
// attrs holds no field the schema does not know.
func (s Schema) Validate(attrs model.Attributes) error {
	known := s.FieldNames()
	for _, f := range s.Fields {
		if !f.Optional && strings.TrimSpace(attrs[f.Name]) == "" {
			return model.Invalid("attributes."+f.Name, "is required for category %s", s.Category)
		}
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !slices.Contains(known, k) {
			return model.Invalid("attributes."+k, "is not a field of category %s", s.Category)
		}
	}
	return nil
}

func (s Schema) check() error {
	if strings.TrimSpace(s.Category) == "" {
		return fmt.Errorf("category name is required")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("category %s: field name is required", s.Category)
		}
		if seen[f.Name] {
			return fmt.Errorf("category %s: duplicate field %s", s.Category, f.Name)
		}
		seen[f.Name] = true
	}
	if s.Unique != "" && !seen[s.Unique] {
		return fmt.Errorf("category %s: unique field %s is not in fields", s.Category, s.Unique)
	}
	return nil
}

// Provider looks up category schemas. Category names compare case-insensitively.
type Provider interface {
	Schema(category string) (Schema, bool)
}

// Static is an in-memory Provider.
type Static struct {
	schemas map[string]Schema
}

// NewStatic builds a provider from schemas, rejecting malformed or repeated
// categories.
func NewStatic(schemas ...Schema) (*Static, error) {
	s := &Static{schemas: make(map[string]Schema, len(schemas))}
	for _, sc := range schemas {
		if err := sc.check(); err != nil {
			return nil, err
		}
		key := normalize(sc.Category)
		if _, ok := s.schemas[key]; ok {
			return nil, fmt.Errorf("duplicate category %s", sc.Category)
		}
		s.schemas[key] = sc
	}
	return s, nil
}

// Schema returns the schema for category.
func (s *Static) Schema(category string) (Schema, bool) {
	if s == nil {
		return Schema{}, false
	}
	sc, ok := s.schemas[normalize(category)]
	return sc, ok
}

// Categories returns the known category names, sorted.
func (s *Static) Categories() []string {
	out := make([]string, 0, len(s.schemas))
	for _, sc := range s.schemas {
		out = append(out, sc.Category)
	}
	sort.Strings(out)
	return out
}

func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
