package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	"graphstore/pkg/graph"
)

// ParseYAML decodes a YAML schema document.
func ParseYAML(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode yaml schema: %w", err)
	}
	return doc, nil
}

// hclDocument is the top-level structure of an HCL schema file.
type hclDocument struct {
	TypeAttribute *string     `hcl:"type_attribute,optional"`
	Models        []*hclModel `hcl:"model,block"`
}

type hclModel struct {
	Type          string            `hcl:"type,label"`
	IDAttribute   *string           `hcl:"id_attribute,optional"`
	TypeAttribute *string           `hcl:"type_attribute,optional"`
	AutoID        *bool             `hcl:"auto_id,optional"`
	IDGenerator   *string           `hcl:"id_generator,optional"`
	Defaults      hcl.Expression    `hcl:"defaults,optional"`
	Preprocess    map[string]string `hcl:"preprocess,optional"`
	Refs          []*hclRef         `hcl:"ref,block"`
	ExternalRefs  []*hclExternalRef `hcl:"external_ref,block"`
}

type hclRef struct {
	Name  string `hcl:"name,label"`
	Model string `hcl:"model"`
	Many  *bool  `hcl:"many,optional"`
}

type hclExternalRef struct {
	Name     string `hcl:"name,label"`
	Model    string `hcl:"model"`
	Property string `hcl:"property"`
}

// ParseHCL decodes an HCL schema document. filename is used in diagnostics.
func ParseHCL(data []byte, filename string) (Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Document{}, fmt.Errorf("failed to parse HCL schema %s: %w", filename, diags)
	}

	var parsed hclDocument
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return Document{}, fmt.Errorf("failed to decode HCL schema %s: %w", filename, diags)
	}

	doc := Document{TypeAttribute: deref(parsed.TypeAttribute)}
	for _, m := range parsed.Models {
		model := Model{
			Type:          m.Type,
			IDAttribute:   deref(m.IDAttribute),
			TypeAttribute: deref(m.TypeAttribute),
			AutoID:        m.AutoID,
			IDGenerator:   deref(m.IDGenerator),
			Preprocess:    m.Preprocess,
		}
		defaults, err := expressionToMap(m.Defaults)
		if err != nil {
			return Document{}, fmt.Errorf("model %s defaults: %w", m.Type, err)
		}
		model.Defaults = defaults
		if len(m.Refs) > 0 {
			model.Refs = make(map[string]Ref, len(m.Refs))
			for _, r := range m.Refs {
				model.Refs[r.Name] = Ref{Model: r.Model, Many: r.Many != nil && *r.Many}
			}
		}
		if len(m.ExternalRefs) > 0 {
			model.ExternalRefs = make(map[string]ExternalRef, len(m.ExternalRefs))
			for _, r := range m.ExternalRefs {
				model.ExternalRefs[r.Name] = ExternalRef{Model: r.Model, Property: r.Property}
			}
		}
		doc.Models = append(doc.Models, model)
	}
	return doc, nil
}

// expressionToMap evaluates a static object expression to plain Go values.
func expressionToMap(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", val.Type().FriendlyName())
	}
	raw, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalizeNumbers(out).(map[string]any), nil
}

// normalizeNumbers turns json.Number into int when integral, float64 otherwise,
// matching what the YAML decoder produces.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// LoadFile reads and decodes a schema file, choosing the format from its
// extension: .yaml, .yml or .hcl.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- schema path comes from configuration
	if err != nil {
		return Document{}, fmt.Errorf("read schema %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".hcl":
		return ParseHCL(data, path)
	default:
		return Document{}, fmt.Errorf("schema %s: unsupported extension %q", path, filepath.Ext(path))
	}
}

// Load reads path and builds its schema.
func Load(path, defaultGenerator string) (*graph.Schema, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := doc.Build(defaultGenerator)
	if err != nil {
		return nil, fmt.Errorf("build schema %s: %w", path, err)
	}
	return s, nil
}
