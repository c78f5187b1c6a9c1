package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"graphstore/pkg/graph"
)

// PrometheusRecorder exports registry metrics as Prometheus collectors.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	patches    *prometheus.CounterVec
	records    *prometheus.GaugeVec
	reg        prometheus.Registerer
}

// NewPrometheusRecorder creates the collectors under namespace and registers
// them with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		reg: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Registry operations by name and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Registry operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"operation"}),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_total",
			Help:      "Committed record patches by type and op.",
		}, []string{"type", "op"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records currently held, by type.",
		}, []string{"type"}),
	}
	for i, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			for _, done := range r.collectors()[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Close unregisters the collectors so the namespace can be registered again.
func (r *PrometheusRecorder) Close() error {
	for _, c := range r.collectors() {
		r.reg.Unregister(c)
	}
	return nil
}

func (r *PrometheusRecorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{r.operations, r.durations, r.patches, r.records}
}

func (r *PrometheusRecorder) Observe(operation string, success bool, d time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *PrometheusRecorder) RecordPatch(typ string, op graph.PatchOp) {
	r.patches.WithLabelValues(typ, string(op)).Inc()
}

func (r *PrometheusRecorder) SetRecordCount(typ string, n int) {
	r.records.WithLabelValues(typ).Set(float64(n))
}

// Operations returns the operation outcome counter.
func (r *PrometheusRecorder) Operations() *prometheus.CounterVec { return r.operations }

// Patches returns the patch counter.
func (r *PrometheusRecorder) Patches() *prometheus.CounterVec { return r.patches }

// Records returns the per-type record gauge.
func (r *PrometheusRecorder) Records() *prometheus.GaugeVec { return r.records }
