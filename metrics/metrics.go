package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_processed_total",
			Help: "Total number of security events processed",
		},
		[]string{"type", "severity"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_dropped_total",
			Help: "Total number of events dropped before processing",
		},
		[]string{"reason"},
	)

	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_rate_limit_exceeded_total",
			Help: "Total number of rate limit violations by action",
		},
		[]string{"action"},
	)

	AnomalyScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_anomaly_score",
			Help:    "Distribution of computed anomaly scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_dispatched_total",
			Help: "Total number of alerts forwarded to the alert sink",
		},
		[]string{"severity"},
	)

	AlertSinkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_alert_sink_failures_total",
			Help: "Total number of failed alert sink deliveries",
		},
	)

	AlertQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_alert_queue_dropped_total",
			Help: "Total number of alerts dropped due to a full dispatch queue",
		},
	)

	FlushBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_flush_batches_total",
			Help: "Total number of audit batches flushed to durable storage",
		},
	)

	FlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_flush_failures_total",
			Help: "Total number of failed audit batch flushes",
		},
	)

	BaselinePersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_baseline_persist_failures_total",
			Help: "Total number of failed baseline persistence writes",
		},
	)

	BufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_event_buffer_size",
			Help: "Current number of events retained in the in-memory buffer",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_errors_total",
			Help: "Total number of cache errors",
		},
		[]string{"cache", "operation"},
	)

	APIRequestsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_api_requests_rate_limited_total",
			Help: "Total number of API requests rejected by rate limiting",
		},
	)
)
