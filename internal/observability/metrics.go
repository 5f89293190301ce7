package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataloom_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataloom_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	datasetsLoadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataloom_datasets_loaded_total",
			Help: "Datasets loaded, by whether they were sampled.",
		},
		[]string{"sampled"},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataloom_questions_total",
			Help: "Answered questions by result kind.",
		},
		[]string{"kind"},
	)

	modelLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataloom_model_latency_seconds",
			Help:    "Model call latency by provider and outcome.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider", "outcome"},
	)

	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataloom_execution_duration_seconds",
			Help:    "Sandbox execution time by result kind.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataloom_active_sessions",
			Help: "Sessions currently held by the API server.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		datasetsLoadedTotal,
		questionsTotal,
		modelLatencySeconds,
		executionDurationSeconds,
		activeSessions,
	)
}

func ObserveDatasetLoaded(sampled bool) {
	label := "false"
	if sampled {
		label = "true"
	}
	datasetsLoadedTotal.WithLabelValues(label).Inc()
}

func ObserveQuestion(kind string) {
	questionsTotal.WithLabelValues(kind).Inc()
}

func ObserveModelCall(provider string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	modelLatencySeconds.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func ObserveExecution(kind string, d time.Duration) {
	executionDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
