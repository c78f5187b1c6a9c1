package idgen_test

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"graphstore/pkg/graph"
	"graphstore/pkg/idgen"
)

var _ graph.IDGenerator = idgen.Generator(nil)

func TestCounter(t *testing.T) {
	c := idgen.NewCounter(5)
	require.Equal(t, 5, c.NextID())
	require.Equal(t, 6, c.NextID())
}

func TestRandomGeneratorsProduceDistinctValidIDs(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]{32}$`)
	cases := map[string]func(t *testing.T, id string){
		"uuid": func(t *testing.T, id string) {
			_, err := uuid.Parse(id)
			require.NoError(t, err)
		},
		"ulid": func(t *testing.T, id string) {
			_, err := ulid.ParseStrict(id)
			require.NoError(t, err)
		},
		"hex": func(t *testing.T, id string) {
			require.Regexp(t, hexPattern, id)
		},
	}
	for name, check := range cases {
		t.Run(name, func(t *testing.T) {
			gen, err := idgen.New(name)
			require.NoError(t, err)
			seen := map[string]bool{}
			for range 50 {
				id, ok := gen.NextID().(string)
				require.True(t, ok)
				check(t, id)
				require.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := idgen.New("snowflake")
	require.ErrorContains(t, err, "snowflake")
	require.Equal(t, []string{"counter", "hex", "ulid", "uuid"}, idgen.Names())
}

func TestGeneratorDrivesAutoID(t *testing.T) {
	gen, err := idgen.New("ulid")
	require.NoError(t, err)
	s, err := graph.NewSchema(&graph.ModelType{Type: "event", IDGenerator: gen})
	require.NoError(t, err)
	reg, err := graph.NewRegistry(s, nil)
	require.NoError(t, err)

	a, err := reg.Add(map[string]any{"kind": "a"}, "event")
	require.NoError(t, err)
	b, err := reg.Add(map[string]any{"kind": "b"}, "event")
	require.NoError(t, err)
	require.Less(t, a.ID().(string), b.ID().(string))
}
