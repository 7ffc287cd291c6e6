package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	gradingOutcomesTotal *prometheus.CounterVec
	gradingInFlight      prometheus.Gauge
	relayedBytesTotal    *prometheus.CounterVec
	queueDepth           prometheus.Gauge
	queueTasksTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_http_latency_seconds",
			Help:    "Latency distribution for API requests with buffered bodies.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_grading_outcomes_total",
			Help: "Grading runs by subject and terminal outcome.",
		}, []string{"subject", "outcome"})

		gradingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grader_grading_in_flight",
			Help: "Number of grading runs currently streaming.",
		})

		relayedBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_relayed_bytes_total",
			Help: "Model output bytes relayed to clients.",
		}, []string{"subject"})

		queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grader_queue_depth",
			Help: "Grading tasks waiting for a worker.",
		})

		queueTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_queue_tasks_total",
			Help: "Queued grading tasks by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			gradingOutcomesTotal,
			gradingInFlight,
			relayedBytesTotal,
			queueDepth,
			queueTasksTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// GradingOutcomes counts finished grading runs.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// GradingInFlight tracks streaming grading runs.
func GradingInFlight() prometheus.Gauge {
	RegisterMetrics()
	return gradingInFlight
}

// RelayedBytes counts bytes written to grading response bodies.
func RelayedBytes() *prometheus.CounterVec {
	RegisterMetrics()
	return relayedBytesTotal
}

// QueueDepth tracks pending queued tasks.
func QueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return queueDepth
}

// QueueTasks counts queued tasks by result.
func QueueTasks() *prometheus.CounterVec {
	RegisterMetrics()
	return queueTasksTotal
}
