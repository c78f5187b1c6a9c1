package graph

import (
	"fmt"
	"slices"
)

// Schema is the registration table from type tag to model. Unknown tags fall
// back to a base model with auto-id and no references.
type Schema struct {
	typeAttribute string
	models        map[string]*ModelType
	implicit      map[string]bool
	order         []string
	base          *ModelType
}

// NewSchema registers models under the default type attribute.
func NewSchema(models ...*ModelType) (*Schema, error) {
	return NewSchemaWithTypeAttribute(TypeAttribute, models...)
}

// NewSchemaWithTypeAttribute registers models and reads type tags from attr
// when a model does not name its own type attribute.
func NewSchemaWithTypeAttribute(attr string, models ...*ModelType) (*Schema, error) {
	if attr == "" {
		attr = TypeAttribute
	}
	s := &Schema{
		typeAttribute: attr,
		models:        make(map[string]*ModelType),
		implicit:      make(map[string]bool),
		base:          &ModelType{Type: DefaultType, TypeAttribute: attr, schemaTag: attr},
	}
	if err := s.base.prepare(); err != nil {
		return nil, err
	}
	for _, m := range models {
		if err := s.Register(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustSchema is NewSchema for static declarations; it panics on error.
func MustSchema(models ...*ModelType) *Schema {
	s, err := NewSchema(models...)
	if err != nil {
		panic(err)
	}
	return s
}

// Register adds a model. Registering a type twice is an error; a type that was
// only seen as an unregistered tag may still be registered.
func (s *Schema) Register(m *ModelType) error {
	if m == nil {
		return fmt.Errorf("register model: nil model")
	}
	if _, exists := s.models[m.Type]; exists && !s.implicit[m.Type] {
		return fmt.Errorf("model %s already registered", m.Type)
	}
	if m.TypeAttribute == "" {
		m.TypeAttribute = s.typeAttribute
	}
	m.schemaTag = s.typeAttribute
	if err := m.prepare(); err != nil {
		return fmt.Errorf("register model: %w", err)
	}
	if s.implicit[m.Type] {
		delete(s.implicit, m.Type)
	} else {
		s.order = append(s.order, m.Type)
	}
	s.models[m.Type] = m
	return nil
}

// Lookup returns the explicitly registered model for typ.
func (s *Schema) Lookup(typ string) (*ModelType, bool) {
	m, ok := s.models[typ]
	if !ok || s.implicit[typ] {
		return nil, false
	}
	return m, true
}

// Model returns the registered model for typ or the base model. The base
// model is returned under typ when typ is not empty, so untyped records keep
// the tag they were added with.
func (s *Schema) Model(typ string) *ModelType {
	if m, ok := s.models[typ]; ok {
		return m
	}
	if typ == "" || typ == DefaultType {
		return s.base
	}
	m := &ModelType{Type: typ, TypeAttribute: s.typeAttribute, IDGenerator: s.base.IDGenerator, schemaTag: s.typeAttribute}
	_ = m.prepare()
	s.models[typ] = m
	s.implicit[typ] = true
	s.order = append(s.order, typ)
	return m
}

// Types returns the registered type names in registration order.
func (s *Schema) Types() []string {
	return slices.Clone(s.order)
}

// TypeAttribute returns the schema-wide type tag field.
func (s *Schema) TypeAttribute() string { return s.typeAttribute }

// TypeOf reads the type tag from serialized data.
func (s *Schema) TypeOf(data map[string]any) string {
	if tag, ok := data[s.typeAttribute].(string); ok && tag != "" {
		return tag
	}
	for _, typ := range s.order {
		m := s.models[typ]
		if m.TypeAttribute == s.typeAttribute {
			continue
		}
		if tag, ok := data[m.TypeAttribute].(string); ok && tag == m.Type {
			return m.Type
		}
	}
	return DefaultType
}
