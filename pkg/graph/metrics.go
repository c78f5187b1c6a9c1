package graph

import "time"

// MetricsRecorder receives registry instrumentation. Implementations must be
// cheap; they are called on every mutation.
type MetricsRecorder interface {
	Observe(op string, success bool, d time.Duration)
	RecordPatch(typ string, op PatchOp)
	SetRecordCount(typ string, n int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(string, bool, time.Duration) {}
func (noopMetrics) RecordPatch(string, PatchOp)        {}
func (noopMetrics) SetRecordCount(string, int)         {}
