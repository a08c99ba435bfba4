package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the accounts service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Webhook processing metrics, labeled by event type and terminal outcome
	WebhookEventsTotal    *prometheus.CounterVec
	WebhookProcessSeconds *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageRetriesTotal      prometheus.Counter

	// Query cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Business metrics
	QuotaRolloversTotal prometheus.Counter
	UsersSyncedTotal    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_webhook_events_total",
				Help: "Webhook events by type and terminal outcome",
			},
			[]string{"event_type", "outcome"},
		),
		WebhookProcessSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_webhook_process_duration_seconds",
				Help:    "Webhook processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_storage_operations_total",
				Help: "Storage operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StorageRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_storage_retries_total",
				Help: "Transient storage errors that triggered a retry",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_status_cache_hits_total",
				Help: "Account status cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_status_cache_misses_total",
				Help: "Account status cache misses",
			},
		),
		QuotaRolloversTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_quota_rollovers_total",
				Help: "Quota periods rolled over",
			},
		),
		UsersSyncedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accounts_users_synced_total",
				Help: "New user records seeded by the sync job",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.WebhookProcessSeconds,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageRetriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.QuotaRolloversTotal,
		m.UsersSyncedTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records metrics for a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveStorageOperation records metrics for a storage call
func (m *Metrics) ObserveStorageOperation(operation string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, result).Inc()
	m.StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
