package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsTotal tracks handled errors by category and severity
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_errors_total",
			Help: "Total number of handled errors",
		},
		[]string{"category", "severity"},
	)

	// RetryAttemptsTotal tracks retried operation attempts
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_retry_attempts_total",
			Help: "Total number of attempts made by the retry engine",
		},
		[]string{"operation", "outcome"},
	)

	// FallbackTotal tracks how often a degraded data source was used
	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_fallback_total",
			Help: "Total number of fallback invocations",
		},
		[]string{"resource"},
	)

	// CacheOperationsTotal tracks cache lookups and writes
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	// ProviderAttemptsTotal tracks LLM provider attempts
	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_llm_provider_attempts_total",
			Help: "Total number of LLM provider attempts",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderLatency tracks LLM provider latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demandcast_llm_provider_latency_seconds",
			Help:    "LLM provider latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// ComponentStatus is 0 healthy, 1 warning, 2 critical, 3 unknown, 4 unavailable
	ComponentStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "demandcast_component_status",
			Help: "Health status of a component",
		},
		[]string{"component"},
	)

	// ComponentCheckDuration tracks health probe duration
	ComponentCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demandcast_component_check_duration_seconds",
			Help:    "Health check duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// HTTPRequestsTotal tracks served HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demandcast_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "demandcast_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
