package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "call_duration_seconds",
		Help:      "Duration of model calls, measured until the stream ends",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
	}, []string{"provider", "model", "mode"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "call_failures_total",
		Help:      "Number of failed model calls",
	}, []string{"provider", "model", "stage"})

	aiChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "stream_chunks_total",
		Help:      "Number of text deltas received from streaming calls",
	}, []string{"provider", "model"})
)
