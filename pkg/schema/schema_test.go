package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"graphstore/pkg/graph"
	"graphstore/pkg/schema"
)

func TestYAMLAndHCLDescribeTheSameSchema(t *testing.T) {
	yamlDoc, err := schema.LoadFile(filepath.Join("testdata", "pets.yaml"))
	require.NoError(t, err)
	hclDoc, err := schema.LoadFile(filepath.Join("testdata", "pets.hcl"))
	require.NoError(t, err)

	require.Equal(t, "kind", yamlDoc.TypeAttribute)
	require.Len(t, yamlDoc.Models, 3)
	require.Equal(t, schema.Ref{Model: "person"}, yamlDoc.Models[0].Refs["spouse"])
	require.Equal(t, schema.Ref{Model: "pet", Many: true}, yamlDoc.Models[0].Refs["pets"])
	require.Equal(t, yamlDoc, hclDoc)
}

func TestLoadedSchemaDrivesRegistry(t *testing.T) {
	for _, file := range []string{"pets.yaml", "pets.hcl"} {
		t.Run(file, func(t *testing.T) {
			s, err := schema.Load(filepath.Join("testdata", file), "")
			require.NoError(t, err)
			require.Equal(t, "kind", s.TypeAttribute())
			require.Equal(t, []string{"person", "pet", "event"}, s.Types())

			reg, err := graph.NewRegistry(s, []map[string]any{
				{"kind": "person", "id": 1, "first": "Ann", "last": "Lee"},
				{"kind": "pet", "id": 7, "owner": 1},
			})
			require.NoError(t, err)

			ann := reg.Find("person", 1)
			require.Equal(t, "Ann Lee", ann.Get("full_name"))
			require.Equal(t, "member", ann.Get("role"))
			require.Equal(t, []any{}, ann.Get("tags"))
			require.Len(t, ann.External("owned"), 1)
			require.Equal(t, "person", ann.Serialize()["kind"])

			_, err = reg.Add(map[string]any{"name": "no id"}, "pet")
			require.ErrorIs(t, err, graph.ErrMissingID)

			ev, err := reg.Add(map[string]any{"name": "boot"}, "event")
			require.NoError(t, err)
			require.Len(t, ev.ID().(string), 26)
		})
	}
}

func TestPreprocessRunsOnUpsert(t *testing.T) {
	s, err := schema.Load(filepath.Join("testdata", "pets.yaml"), "")
	require.NoError(t, err)
	reg, err := graph.NewRegistry(s, nil)
	require.NoError(t, err)

	_, err = reg.Add(map[string]any{"id": 1, "first": "Ann", "last": "Lee"}, "person")
	require.NoError(t, err)
	rec, err := reg.Add(map[string]any{"id": 1, "first": "Anna", "last": "Lee"}, "person")
	require.NoError(t, err)
	require.Equal(t, "Anna Lee", rec.Get("full_name"))
}

func TestPreprocessLeavesFieldOnNilResult(t *testing.T) {
	doc, err := schema.ParseYAML([]byte(`
models:
  - type: user
    preprocess:
      nickname: 'nickname ?? name'
`))
	require.NoError(t, err)
	s, err := doc.Build("")
	require.NoError(t, err)
	reg, err := graph.NewRegistry(s, nil)
	require.NoError(t, err)

	named, err := reg.Add(map[string]any{"name": "Ann"}, "user")
	require.NoError(t, err)
	require.Equal(t, "Ann", named.Get("nickname"))

	bare, err := reg.Add(map[string]any{}, "user")
	require.NoError(t, err)
	require.False(t, bare.Has("nickname"))
}

func TestDefaultGenerator(t *testing.T) {
	doc := schema.Document{Models: []schema.Model{{Type: "note"}}}
	s, err := doc.Build("uuid")
	require.NoError(t, err)
	reg, err := graph.NewRegistry(s, nil)
	require.NoError(t, err)
	rec, err := reg.Add(map[string]any{}, "note")
	require.NoError(t, err)
	require.Len(t, rec.ID().(string), 36)
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]schema.Document{
		"missing type":     {Models: []schema.Model{{}}},
		"empty ref model":  {Models: []schema.Model{{Type: "a", Refs: map[string]schema.Ref{"b": {}}}}},
		"bad generator":    {Models: []schema.Model{{Type: "a", IDGenerator: "snowflake"}}},
		"bad expression":   {Models: []schema.Model{{Type: "a", Preprocess: map[string]string{"x": "1 +"}}}},
		"empty expression": {Models: []schema.Model{{Type: "a", Preprocess: map[string]string{"x": ""}}}},
		"duplicate":        {Models: []schema.Model{{Type: "a"}, {Type: "a"}}},
		"ref and external": {Models: []schema.Model{{
			Type:         "a",
			Refs:         map[string]schema.Ref{"x": {Model: "a"}},
			ExternalRefs: map[string]schema.ExternalRef{"x": {Model: "a", Property: "x"}},
		}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := doc.Build("")
			require.Error(t, err)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := schema.ParseYAML([]byte("models: [{type: a, unknown: 1}]"))
	require.Error(t, err)

	_, err = schema.ParseHCL([]byte(`model "a" { defaults = "nope" }`), "bad.hcl")
	require.ErrorContains(t, err, "expected an object")

	_, err = schema.ParseHCL([]byte(`model {`), "broken.hcl")
	require.ErrorContains(t, err, "broken.hcl")

	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err = schema.LoadFile(path)
	require.ErrorContains(t, err, "unsupported extension")

	_, err = schema.LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
