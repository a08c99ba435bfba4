// Package observability provides structured logging, Prometheus metrics, and
// health checks for the accounts service.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("account upgraded")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.WebhookEventsTotal.WithLabelValues("payment_succeeded", "applied").Inc()
//
// # Health Checks
//
// The health checker serves liveness and readiness probes on a dedicated
// port, pinging Postgres (required) and Redis (optional, degrades only).
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/httputil: request logging middleware
package observability
