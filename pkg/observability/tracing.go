package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"graphstore/pkg/graph"
)

// TraceOptions configures the span pipeline built by NewTraceProvider.
type TraceOptions struct {
	ServiceName string
	// SampleRate is the fraction of operations traced. Zero or less traces
	// everything.
	SampleRate float64
	// Writer receives spans as JSON. Nil keeps spans in process only.
	Writer io.Writer
}

// NewTraceProvider builds an SDK tracer provider exporting through stdouttrace.
// Callers own the provider and must Shutdown it to flush pending spans.
func NewTraceProvider(opts TraceOptions) (*sdktrace.TracerProvider, error) {
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "graphstore"
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = 1
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	if opts.Writer != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(tpOpts...), nil
}

// TracingRecorder turns registry operations into spans. Operations are
// reported after they finish, so spans are started and ended with explicit
// timestamps.
type TracingRecorder struct {
	tracer trace.Tracer
}

// NewTracingRecorder records spans through tp.
func NewTracingRecorder(tp trace.TracerProvider) *TracingRecorder {
	return &TracingRecorder{tracer: tp.Tracer("graphstore/registry")}
}

func (r *TracingRecorder) Observe(operation string, success bool, d time.Duration) {
	end := time.Now()
	_, span := r.tracer.Start(context.Background(), "registry."+operation,
		trace.WithTimestamp(end.Add(-d)),
		trace.WithAttributes(attribute.String("graphstore.operation", operation)))
	if success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, operation+" failed")
	}
	span.End(trace.WithTimestamp(end))
}

// RecordPatch is a no-op; patches are covered by the journal.
func (r *TracingRecorder) RecordPatch(string, graph.PatchOp) {}

// SetRecordCount is a no-op; gauges belong to the metrics backends.
func (r *TracingRecorder) SetRecordCount(string, int) {}

// Fanout forwards every measurement to each non-nil recorder. It returns nil
// when no recorder remains and the single recorder when only one does.
func Fanout(recorders ...graph.MetricsRecorder) graph.MetricsRecorder {
	var out fanout
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

type fanout []graph.MetricsRecorder

func (f fanout) Observe(operation string, success bool, d time.Duration) {
	for _, r := range f {
		r.Observe(operation, success, d)
	}
}

func (f fanout) RecordPatch(typ string, op graph.PatchOp) {
	for _, r := range f {
		r.RecordPatch(typ, op)
	}
}

func (f fanout) SetRecordCount(typ string, n int) {
	for _, r := range f {
		r.SetRecordCount(typ, n)
	}
}
