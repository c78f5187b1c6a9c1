package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
)

// RefSpec declares a local reference: the target model and whether the field
// holds a sequence of ids.
type RefSpec struct {
	Model string
	Many  bool
}

// ExternalRef declares a read-only back-reference: the records of Model whose
// Property references the current record.
type ExternalRef struct {
	Model    string
	Property string
}

// IDGenerator produces candidate ids for records constructed without one.
type IDGenerator interface {
	NextID() any
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() any

func (f IDGeneratorFunc) NextID() any { return f() }

// ModelType declares one record type. The zero values of the optional fields
// select the package defaults; a ModelType is prepared in place the first time
// it is used and must not be modified afterwards.
type ModelType struct {
	Type          string
	IDAttribute   string
	TypeAttribute string
	Defaults      map[string]any
	Refs          map[string]RefSpec
	ExternalRefs  map[string]ExternalRef
	DisableAutoID bool
	IDGenerator   IDGenerator
	// Preprocess rewrites incoming data before it is applied at construction
	// and on upsert. It receives a copy and may return it modified.
	Preprocess func(map[string]any) (map[string]any, error)

	// schemaTag is the schema-wide type attribute, reserved alongside
	// TypeAttribute when the two differ.
	schemaTag string
	prepared  bool
}

type counter struct{ next atomic.Int64 }

func (c *counter) NextID() any { return int(c.next.Add(1)) }

func (m *ModelType) prepare() error {
	if m.prepared {
		return nil
	}
	if m.Type == "" {
		return fmt.Errorf("model type name is empty")
	}
	for key := range m.Refs {
		if _, dup := m.ExternalRefs[key]; dup {
			return fmt.Errorf("model %s: %q declared as both reference and external reference", m.Type, key)
		}
	}
	for key, ext := range m.ExternalRefs {
		if ext.Model == "" || ext.Property == "" {
			return fmt.Errorf("model %s: external reference %q needs a model and a property", m.Type, key)
		}
	}
	if m.IDAttribute == "" {
		m.IDAttribute = DefaultIDAttribute
	}
	if m.TypeAttribute == "" {
		m.TypeAttribute = TypeAttribute
	}
	if m.IDGenerator == nil {
		m.IDGenerator = &counter{}
	}
	m.prepared = true
	return nil
}

// RefKeys returns the declared local reference fields in sorted order.
func (m *ModelType) RefKeys() []string {
	return slices.Sorted(maps.Keys(m.Refs))
}

// ExternalRefKeys returns the declared external reference fields in sorted order.
func (m *ModelType) ExternalRefKeys() []string {
	return slices.Sorted(maps.Keys(m.ExternalRefs))
}

func (m *ModelType) preprocess(data map[string]any) (map[string]any, error) {
	out := maps.Clone(data)
	if out == nil {
		out = map[string]any{}
	}
	if m.Preprocess == nil {
		return out, nil
	}
	res, err := m.Preprocess(out)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", m.Type, err)
	}
	if res == nil {
		res = map[string]any{}
	}
	return res, nil
}

// withDefaults merges defaults under already preprocessed input.
func (m *ModelType) withDefaults(pre map[string]any) map[string]any {
	out := make(map[string]any, len(m.Defaults)+len(pre))
	for k, v := range m.Defaults {
		out[k] = cloneValue(v)
	}
	maps.Copy(out, pre)
	return out
}

// cloneValue copies the slice and map shapes produced by decoders so that
// defaults are not shared between records.
func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
