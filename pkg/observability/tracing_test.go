package observability_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"graphstore/pkg/graph"
	"graphstore/pkg/observability"
)

func TestTracingRecorderEmitsOperationSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := petRegistry(t, []map[string]any{{"id": 1, graph.TypeAttribute: "person"}},
		graph.WithMetrics(observability.NewTracingRecorder(tp)))
	_, err := reg.Add(map[string]any{"id": 2}, "person")
	require.NoError(t, err)
	_, err = reg.Add("not a record", "person")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "registry.seed", spans[0].Name())
	require.Equal(t, "registry.add", spans[1].Name())
	require.Equal(t, codes.Ok, spans[1].Status().Code)
	require.Equal(t, codes.Error, spans[2].Status().Code)
	require.Contains(t, spans[1].Attributes(), attribute.String("graphstore.operation", "add"))
	require.False(t, spans[1].EndTime().Before(spans[1].StartTime()))
}

func TestNewTraceProviderExportsJSON(t *testing.T) {
	var out bytes.Buffer
	tp, err := observability.NewTraceProvider(observability.TraceOptions{ServiceName: "pets", Writer: &out})
	require.NoError(t, err)

	observability.NewTracingRecorder(tp).Observe("add", true, time.Millisecond)
	require.NoError(t, tp.Shutdown(context.Background()))

	require.Contains(t, out.String(), `"Name":"registry.add"`)
	require.Contains(t, out.String(), "pets")
}

func TestFanout(t *testing.T) {
	require.Nil(t, observability.Fanout())
	require.Nil(t, observability.Fanout(nil, nil))

	exp := observability.NewExpvarRecorder("")
	require.Same(t, exp, observability.Fanout(nil, exp))

	other := observability.NewExpvarRecorder("")
	both := observability.Fanout(exp, other)
	both.Observe("add", true, time.Millisecond)
	both.RecordPatch("pet", graph.PatchReplace)
	both.SetRecordCount("pet", 3)

	for _, rec := range []*observability.ExpvarRecorder{exp, other} {
		snap := rec.Snapshot()
		require.Equal(t, int64(1), snap.Results["add"]["success"])
		require.Equal(t, int64(1), snap.Patches["pet"]["replace"])
		require.Equal(t, 3, snap.Records["pet"])
	}
}
