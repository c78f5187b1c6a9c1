package graph_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"graphstore/pkg/graph"
)

func drawRegistry(rt *rapid.T) *graph.Registry {
	reg, err := graph.NewRegistry(petSchema(rt), nil)
	require.NoError(rt, err)

	people := rapid.IntRange(1, 8).Draw(rt, "people")
	for i := 1; i <= people; i++ {
		data := map[string]any{"id": i, "name": rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "name")}
		if rapid.Bool().Draw(rt, "married") {
			data["spouse"] = rapid.IntRange(1, people+2).Draw(rt, "spouse")
		}
		_, err := reg.Add(data, "person")
		require.NoError(rt, err)
	}
	pets := rapid.IntRange(0, 8).Draw(rt, "pets")
	for i := 1; i <= pets; i++ {
		data := map[string]any{"id": i}
		if rapid.Bool().Draw(rt, "owned") {
			data["owner"] = map[string]any{"id": rapid.IntRange(1, people+2).Draw(rt, "owner")}
		}
		rec, err := reg.Add(data, "pet")
		require.NoError(rt, err)
		if owner := rec.Ref("owner"); owner != nil && rapid.Bool().Draw(rt, "listed") {
			_, err := owner.Assign("pets", []any{rec})
			require.NoError(rt, err)
		}
	}
	return reg
}

func requireIsomorphic(rt *rapid.T, want, got *graph.Registry) {
	require.Equal(rt, want.Len(), got.Len())
	for _, rec := range want.Records() {
		twin := got.Find(rec.Type(), rec.ID())
		require.NotNil(rt, twin, "%s %v missing", rec.Type(), rec.ID())
		for _, key := range rec.Model().RefKeys() {
			ref := rec.Ref(key)
			if ref == nil {
				require.Nil(rt, twin.Ref(key))
				continue
			}
			require.NotNil(rt, twin.Ref(key))
			require.True(rt, graph.SameID(ref.ID(), twin.Ref(key).ID()))
		}
		if list := rec.RefList("pets"); list != nil {
			require.Equal(rt, list.Len(), twin.RefList("pets").Len())
		}
		require.Len(rt, twin.External("owned"), len(rec.External("owned")))
	}
}

// serialize → new registry reproduces the graph regardless of record order.
func TestSerializationRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := drawRegistry(rt)
		data := rapid.Permutation(reg.Serialize()).Draw(rt, "order")

		copyReg, err := graph.NewRegistry(petSchema(rt), data)
		require.NoError(rt, err)
		requireIsomorphic(rt, reg, copyReg)
	})
}

func TestJSONRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := drawRegistry(rt)
		encoded, err := json.Marshal(reg)
		require.NoError(rt, err)

		var decoded []map[string]any
		require.NoError(rt, json.Unmarshal(encoded, &decoded))
		copyReg, err := graph.NewRegistry(petSchema(rt), decoded)
		require.NoError(rt, err)
		requireIsomorphic(rt, reg, copyReg)

		reencoded, err := json.Marshal(copyReg)
		require.NoError(rt, err)
		require.JSONEq(rt, string(encoded), string(reencoded))
	})
}

func TestUpsertIdentityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg, err := graph.NewRegistry(petSchema(rt), nil)
		require.NoError(rt, err)

		first := map[int]*graph.Record{}
		expected := map[int]map[string]any{}
		ops := rapid.IntRange(1, 30).Draw(rt, "ops")
		for range ops {
			id := rapid.IntRange(1, 5).Draw(rt, "id")
			field := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(rt, "field")
			val := rapid.IntRange(0, 3).Draw(rt, "val")

			rec, err := reg.Add(map[string]any{"id": id, field: val}, "person")
			require.NoError(rt, err)
			if prev, ok := first[id]; ok {
				require.Same(rt, prev, rec)
			} else {
				first[id] = rec
				expected[id] = map[string]any{}
			}
			expected[id][field] = val
		}

		require.Equal(rt, len(first), reg.Count("person"))
		for id, fields := range expected {
			rec := reg.Find("person", id)
			for k, v := range fields {
				require.Equal(rt, v, rec.Get(k))
			}
		}
	})
}
