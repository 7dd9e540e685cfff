package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the Heimdall core.
type Metrics struct {
	// Protocol metrics
	AuthorizeRequestsTotal *prometheus.CounterVec
	TokenRequestsTotal     *prometheus.CounterVec
	TokenRequestDuration   *prometheus.HistogramVec
	IntrospectionsTotal    *prometheus.CounterVec
	RevocationsTotal       prometheus.Counter

	// Authorization engine metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration prometheus.Histogram
	CodeExchangesTotal      *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Heimdall metrics. A nil registry uses
// a fresh one, keeping tests isolated from the default registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		AuthorizeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_authorize_requests_total",
				Help: "Authorize requests by outcome",
			},
			[]string{"outcome"},
		),
		TokenRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_token_requests_total",
				Help: "Token requests by grant type and outcome",
			},
			[]string{"grant_type", "outcome"},
		),
		TokenRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heimdall_token_request_duration_seconds",
				Help:    "Token request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"grant_type"},
		),
		IntrospectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_introspections_total",
				Help: "Introspection requests by verdict",
			},
			[]string{"active"},
		),
		RevocationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "heimdall_revocations_total",
				Help: "Revocation requests",
			},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_permission_checks_total",
				Help: "Permission checks by result",
			},
			[]string{"allowed"},
		),
		PermissionCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "heimdall_permission_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		CodeExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_code_exchanges_total",
				Help: "Authorization code exchanges by outcome",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_cache_hits_total",
				Help: "Cache hits by keyspace",
			},
			[]string{"keyspace"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heimdall_cache_misses_total",
				Help: "Cache misses by keyspace",
			},
			[]string{"keyspace"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heimdall_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heimdall_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.AuthorizeRequestsTotal,
		m.TokenRequestsTotal,
		m.TokenRequestDuration,
		m.IntrospectionsTotal,
		m.RevocationsTotal,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.CodeExchangesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTokenRequest records one token request.
func (m *Metrics) ObserveTokenRequest(grantType, outcome string, duration time.Duration) {
	m.TokenRequestsTotal.WithLabelValues(grantType, outcome).Inc()
	m.TokenRequestDuration.WithLabelValues(grantType).Observe(duration.Seconds())
}

// CollectDBStats copies connection pool stats into the gauges. Call it
// periodically or from a scrape hook.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}
