package observability

import (
	"expvar"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"graphstore/pkg/graph"
)

var expvarSeq uint64

// ExpvarRecorder publishes registry metrics via expvar: timing totals and
// success/error counters per operation, patch counts per type and op, and the
// current record count per type.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
	patches   map[string]map[string]int64
	records   map[string]int
}

// ExpvarSnapshot captures a read-only view of the recorded metrics.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	Patches     map[string]map[string]int64 `json:"patches_total"`
	Records     map[string]int              `json:"records"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is generated.
// Publishing the same name twice panics, as with expvar.Publish.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("graphstore_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
		patches:   make(map[string]map[string]int64),
		records:   make(map[string]int),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ExpvarSnapshot{
		DurationsMS: maps.Clone(r.durations),
		Results:     cloneCounts(r.results),
		Patches:     cloneCounts(r.patches),
		Records:     maps.Clone(r.records),
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe records a registry operation outcome.
func (r *ExpvarRecorder) Observe(operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	r.durations[operation] += ms
	bump(r.results, operation, status)
	r.mu.Unlock()
}

// RecordPatch counts a committed patch.
func (r *ExpvarRecorder) RecordPatch(typ string, op graph.PatchOp) {
	r.mu.Lock()
	bump(r.patches, typ, string(op))
	r.mu.Unlock()
}

// SetRecordCount stores the current number of records of typ.
func (r *ExpvarRecorder) SetRecordCount(typ string, n int) {
	r.mu.Lock()
	r.records[typ] = n
	r.mu.Unlock()
}

func bump(counts map[string]map[string]int64, outer, inner string) {
	if _, ok := counts[outer]; !ok {
		counts[outer] = make(map[string]int64, 2)
	}
	counts[outer][inner]++
}

func cloneCounts(in map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(in))
	for k, v := range in {
		out[k] = maps.Clone(v)
	}
	return out
}
