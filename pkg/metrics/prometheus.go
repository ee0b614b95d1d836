// Package metrics exposes optimizer outcomes to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements optimization.MetricsRecorder using Prometheus.
type Recorder struct {
	optimizations  *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	frontierPoints *prometheus.CounterVec
}

// New creates a recorder registered on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		optimizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocator_optimizations_total",
				Help: "Total number of optimization calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "allocator_optimization_duration_seconds",
				Help:    "Duration of optimization calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"method"},
		),
		frontierPoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocator_frontier_points_total",
				Help: "Efficient frontier points by result",
			},
			[]string{"result"},
		),
	}
}

// RecordOptimization records one optimization call.
func (r *Recorder) RecordOptimization(method, outcome string, seconds float64) {
	r.optimizations.WithLabelValues(method, outcome).Inc()
	r.duration.WithLabelValues(method).Observe(seconds)
}

// RecordFrontierPoint records a solved or skipped frontier point.
func (r *Recorder) RecordFrontierPoint(result string) {
	r.frontierPoints.WithLabelValues(result).Inc()
}
