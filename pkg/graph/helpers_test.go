package graph_test

import (
	"time"

	"github.com/stretchr/testify/require"

	"graphstore/pkg/graph"
)

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

// petSchema declares the person/pet graph used across the tests. Each call
// returns fresh models so id counters start from 1.
func petSchema(t testingT) *graph.Schema {
	t.Helper()
	s, err := graph.NewSchema(
		&graph.ModelType{
			Type: "person",
			Refs: map[string]graph.RefSpec{
				"spouse": {Model: "person"},
				"pets":   {Model: "pet", Many: true},
			},
			ExternalRefs: map[string]graph.ExternalRef{
				"owned": {Model: "pet", Property: "owner"},
			},
		},
		&graph.ModelType{
			Type: "pet",
			Refs: map[string]graph.RefSpec{
				"owner": {Model: "person"},
			},
		},
	)
	require.NoError(t, err)
	return s
}

func newRegistry(t testingT, seed []map[string]any, opts ...graph.Option) *graph.Registry {
	t.Helper()
	reg, err := graph.NewRegistry(petSchema(t), seed, opts...)
	require.NoError(t, err)
	return reg
}

func mustAdd(t testingT, reg *graph.Registry, data map[string]any, typ string) *graph.Record {
	t.Helper()
	rec, err := reg.Add(data, typ)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

type patchLog struct {
	patches []graph.Patch
}

func (l *patchLog) listen(p graph.Patch, _ *graph.Record) { l.patches = append(l.patches, p) }

type metricCall struct {
	op      string
	success bool
}

type recordingMetrics struct {
	observed []metricCall
	patches  map[string]int
	counts   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{patches: map[string]int{}, counts: map[string]int{}}
}

func (m *recordingMetrics) Observe(op string, success bool, _ time.Duration) {
	m.observed = append(m.observed, metricCall{op: op, success: success})
}

func (m *recordingMetrics) RecordPatch(typ string, op graph.PatchOp) {
	m.patches[typ+"/"+string(op)]++
}

func (m *recordingMetrics) SetRecordCount(typ string, n int) { m.counts[typ] = n }
