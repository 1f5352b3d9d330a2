package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the search pipeline.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Builder metrics
	ParamsAcceptedTotal *prometheus.CounterVec
	ParamsDroppedTotal  *prometheus.CounterVec
	BuildsTotal         *prometheus.CounterVec
	BuildDuration       *prometheus.HistogramVec

	// Execution metrics
	MaterializationsTotal *prometheus.CounterVec
	QueryDuration         *prometheus.HistogramVec
	QueryErrorsTotal      *prometheus.CounterVec

	// Cache metrics: dispatch (builder types), parse (key memoization),
	// result (executor-level Redis cache).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metasearch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ParamsAcceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_params_accepted_total",
				Help: "Search parameters accepted into a query",
			},
			[]string{"entity", "kind"},
		),
		ParamsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_params_dropped_total",
				Help: "Search parameters silently dropped",
			},
			[]string{"entity", "reason"},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_builds_total",
				Help: "Builder state transitions from unbuilt to built",
			},
			[]string{"entity"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metasearch_build_duration_seconds",
				Help:    "Time spent resolving and authorizing parameters",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"entity"},
		),

		MaterializationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_materializations_total",
				Help: "Builder materializations by operation",
			},
			[]string{"entity", "operation"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metasearch_query_duration_seconds",
				Help:    "Backing store query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		QueryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_query_errors_total",
				Help: "Backing store query failures",
			},
			[]string{"entity", "operation"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasearch_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "metasearch_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "metasearch_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ParamsAcceptedTotal,
		m.ParamsDroppedTotal,
		m.BuildsTotal,
		m.BuildDuration,
		m.MaterializationsTotal,
		m.QueryDuration,
		m.QueryErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// MetricsHandler returns the Prometheus scrape handler for the registry.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
