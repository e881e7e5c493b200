package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Alert lifecycle metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_total",
			Help: "Total number of alerts processed",
		},
		[]string{"status", "source_type", "severity"},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_escalations_total",
			Help: "Total number of alerts escalated at creation time",
		},
		[]string{"source_type"},
	)

	SubmissionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_submission_errors_total",
			Help: "Total number of failed alert submissions",
		},
		[]string{"reason"}, // reason: validation, storage
	)

	// Retention worker metrics
	AlertsAutoClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_auto_closed_total",
			Help: "Total number of alerts closed by the auto-close worker",
		},
	)

	AlertsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_deleted_total",
			Help: "Total number of alerts removed by the auto-delete worker",
		},
	)

	WorkerTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_worker_tick_duration_seconds",
			Help:    "Time taken by one retention worker tick",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"worker"},
	)

	WorkerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_worker_errors_total",
			Help: "Total number of per-alert failures inside retention workers",
		},
		[]string{"worker"},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_kafka_publish_total",
			Help: "Total number of notifications published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
