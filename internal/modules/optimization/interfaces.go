package optimization

// MetricsRecorder receives outcome counters and timings from the optimizer.
// Implemented by pkg/metrics. A nil recorder disables recording.
type MetricsRecorder interface {
	RecordOptimization(method, outcome string, seconds float64)
	RecordFrontierPoint(result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOptimization(string, string, float64) {}
func (noopRecorder) RecordFrontierPoint(string)                 {}
