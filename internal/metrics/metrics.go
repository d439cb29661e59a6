// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_dispatch_runs_total",
			Help: "Total number of dispatch runs by terminal status",
		},
		[]string{"status"},
	)

	DispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_dispatch_run_duration_seconds",
			Help:    "Wall time of a dispatch run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	DispatchRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_dispatch_runs_active",
			Help: "Number of dispatch runs executing in this process",
		},
	)

	DeliveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_delivery_outcomes_total",
			Help: "Per-recipient delivery outcomes by provider and reason",
		},
		[]string{"provider", "reason"},
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "push_gateway_request_duration_seconds",
			Help: "Duration of gateway send calls in seconds",
		},
		[]string{"provider"},
	)

	DeliveryLogWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_delivery_log_write_failures_total",
			Help: "Delivery log writes that failed and were counted as failed deliveries",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)
