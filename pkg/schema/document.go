// Package schema loads model declarations from YAML or HCL files and builds
// the graph.Schema they describe.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"graphstore/pkg/graph"
	"graphstore/pkg/idgen"
)

// Document is the decoded form of a schema file.
type Document struct {
	TypeAttribute string  `yaml:"type_attribute"`
	Models        []Model `yaml:"models"`
}

// Model declares one record type.
type Model struct {
	Type          string                 `yaml:"type"`
	IDAttribute   string                 `yaml:"id_attribute"`
	TypeAttribute string                 `yaml:"type_attribute"`
	AutoID        *bool                  `yaml:"auto_id"`
	IDGenerator   string                 `yaml:"id_generator"`
	Defaults      map[string]any         `yaml:"defaults"`
	Refs          map[string]Ref         `yaml:"refs"`
	ExternalRefs  map[string]ExternalRef `yaml:"external_refs"`
	// Preprocess maps a field to an expr-lang expression evaluated against the
	// incoming data.
	Preprocess map[string]string `yaml:"preprocess"`
}

// Ref declares a local reference. In YAML a bare string names the model.
type Ref struct {
	Model string `yaml:"model"`
	Many  bool   `yaml:"many"`
}

func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Model = node.Value
		r.Many = false
		return nil
	}
	type plain Ref
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Ref(p)
	return nil
}

// ExternalRef declares a back-reference over Property of Model.
type ExternalRef struct {
	Model    string `yaml:"model"`
	Property string `yaml:"property"`
}

// Build turns the document into a schema. defaultGenerator names the id
// generator for models that do not choose one; empty keeps the per-type counter.
func (d Document) Build(defaultGenerator string) (*graph.Schema, error) {
	models := make([]*graph.ModelType, 0, len(d.Models))
	for _, m := range d.Models {
		mt, err := m.modelType(defaultGenerator)
		if err != nil {
			return nil, err
		}
		models = append(models, mt)
	}
	return graph.NewSchemaWithTypeAttribute(d.TypeAttribute, models...)
}

func (m Model) modelType(defaultGenerator string) (*graph.ModelType, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("model without a type")
	}
	mt := &graph.ModelType{
		Type:          m.Type,
		IDAttribute:   m.IDAttribute,
		TypeAttribute: m.TypeAttribute,
		Defaults:      m.Defaults,
		DisableAutoID: m.AutoID != nil && !*m.AutoID,
	}
	if len(m.Refs) > 0 {
		mt.Refs = make(map[string]graph.RefSpec, len(m.Refs))
		for key, ref := range m.Refs {
			if ref.Model == "" {
				return nil, fmt.Errorf("model %s: ref %q has no model", m.Type, key)
			}
			mt.Refs[key] = graph.RefSpec{Model: ref.Model, Many: ref.Many}
		}
	}
	if len(m.ExternalRefs) > 0 {
		mt.ExternalRefs = make(map[string]graph.ExternalRef, len(m.ExternalRefs))
		for key, ext := range m.ExternalRefs {
			mt.ExternalRefs[key] = graph.ExternalRef{Model: ext.Model, Property: ext.Property}
		}
	}
	genName := m.IDGenerator
	if genName == "" {
		genName = defaultGenerator
	}
	if genName != "" {
		gen, err := idgen.New(genName)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Type, err)
		}
		mt.IDGenerator = gen
	}
	if len(m.Preprocess) > 0 {
		pre, err := compilePreprocess(m.Preprocess)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Type, err)
		}
		mt.Preprocess = pre
	}
	return mt, nil
}
