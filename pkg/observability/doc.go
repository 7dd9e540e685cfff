// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for the Heimdall core.
//
// # Structured Logging
//
// JSON logs on stdlib slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("tenant archived")
//	logger.WithError(err).Error("audit write failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(nil)
//	metrics.ObserveTokenRequest("authorization_code", "success", elapsed)
//	metrics.PermissionChecksTotal.WithLabelValues("true").Inc()
//	http.Handle("/metrics", metrics.Handler())
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	status := checker.Check(ctx)
//
// The database is a hard dependency; Redis is a cache, so a Redis outage
// only degrades the verdict.
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/api: HTTP layer emitting request metrics
package observability
