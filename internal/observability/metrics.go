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

	workerPassesTotal    *prometheus.CounterVec
	workerOutcomesTotal  *prometheus.CounterVec
	workerPanicsTotal    prometheus.Counter
	checkerLatency       prometheus.Histogram
	pendingMessages      prometheus.Gauge
	submissionsTotal     *prometheus.CounterVec
	reviewsTotal         *prometheus.CounterVec
	statusStreamsActive  prometheus.Gauge
	statusEventsReceived *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors of the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		workerPassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_worker_passes_total",
			Help: "Worker passes by outcome (completed, skipped, failed).",
		}, []string{"outcome"})

		workerOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_worker_messages_total",
			Help: "Messages handled by the worker by result (passed, failed, error, claimed_elsewhere).",
		}, []string{"result"})

		workerPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grader_worker_panics_total",
			Help: "Worker passes aborted by a recovered panic.",
		})

		checkerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grader_checker_latency_seconds",
			Help:    "Latency of checker gateway calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		})

		pendingMessages = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grader_pending_messages",
			Help: "Unprocessed messages in the submission queue at the start of the last pass.",
		})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_submissions_total",
			Help: "Submission attempts by result (accepted, rejected, closed).",
		}, []string{"result"})

		reviewsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_reviews_total",
			Help: "Teacher review actions by action.",
		}, []string{"action"})

		statusStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grader_status_streams_active",
			Help: "Open websocket status streams.",
		})

		statusEventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_status_events_total",
			Help: "Status events delivered to local subscribers by origin (local, redis, nats).",
		}, []string{"origin"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			workerPassesTotal, workerOutcomesTotal, workerPanicsTotal,
			checkerLatency, pendingMessages, submissionsTotal, reviewsTotal,
			statusStreamsActive, statusEventsReceived,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func WorkerPasses() *prometheus.CounterVec {
	RegisterMetrics()
	return workerPassesTotal
}

func WorkerOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return workerOutcomesTotal
}

func WorkerPanics() prometheus.Counter {
	RegisterMetrics()
	return workerPanicsTotal
}

func CheckerLatency() prometheus.Histogram {
	RegisterMetrics()
	return checkerLatency
}

func PendingMessages() prometheus.Gauge {
	RegisterMetrics()
	return pendingMessages
}

func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

func Reviews() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewsTotal
}

func StatusStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return statusStreamsActive
}

func StatusEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return statusEventsReceived
}
