package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzChecksTotal      *prometheus.CounterVec
	AuthzResolutionsTotal *prometheus.CounterVec

	// Grant cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Workflow metrics
	TransitionsTotal        *prometheus.CounterVec
	TransitionRejectedTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docuvault_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_authz_checks_total",
				Help: "Total number of authorization checks by kind and verdict",
			},
			[]string{"kind", "allowed"},
		),
		AuthzResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_authz_resolutions_total",
				Help: "Total number of full grant-set resolutions from the database",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_grant_cache_hits_total",
				Help: "Total number of grant cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_grant_cache_misses_total",
				Help: "Total number of grant cache misses",
			},
			[]string{"cache"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_grant_cache_invalidations_total",
				Help: "Total number of grant cache invalidations",
			},
			[]string{"scope"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_workflow_transitions_total",
				Help: "Total number of applied document status transitions",
			},
			[]string{"from", "to"},
		),
		TransitionRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docuvault_workflow_transitions_rejected_total",
				Help: "Total number of rejected transition attempts by reason",
			},
			[]string{"reason"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docuvault_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docuvault_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzChecksTotal,
		m.AuthzResolutionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.TransitionsTotal,
		m.TransitionRejectedTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAuthzCheck records the outcome of a single authorization check
func (m *Metrics) RecordAuthzCheck(kind string, allowed bool) {
	v := "false"
	if allowed {
		v = "true"
	}
	m.AuthzChecksTotal.WithLabelValues(kind, v).Inc()
}

// CollectDBStats copies current sql.DB pool statistics into gauges.
// Intended to be called periodically.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// TimeHTTPRequest observes a completed HTTP request
func (m *Metrics) TimeHTTPRequest(method, path, status string, started time.Time) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(started).Seconds())
}
