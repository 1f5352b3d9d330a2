package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paneq/meta-search/pkg/builder"
	"github.com/paneq/meta-search/pkg/httputil"
	"github.com/paneq/meta-search/pkg/observability"
	"github.com/paneq/meta-search/pkg/registry"
	"github.com/paneq/meta-search/pkg/schema"
)

// ContextFunc extracts the search context from an incoming request. It is
// the integration point for the embedding application's authentication:
// whatever it returns is what authorization predicates see.
type ContextFunc func(*http.Request) registry.SearchContext

// RoleHeaderContext builds the search context from the X-Search-Role
// header. It is a demo-grade default; production deployments derive the
// context from their session or token middleware instead.
func RoleHeaderContext(r *http.Request) registry.SearchContext {
	role := r.Header.Get("X-Search-Role")
	if role == "" {
		return nil
	}
	return registry.SearchContext{"role": role}
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *observability.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithContextFunc sets the search context extractor.
func WithContextFunc(fn ContextFunc) ServerOption {
	return func(s *Server) { s.contextFn = fn }
}

// WithHealthChecker exposes /health endpoints backed by the checker.
func WithHealthChecker(checker *observability.HealthChecker) ServerOption {
	return func(s *Server) { s.health = checker }
}

// WithMetrics exposes /metrics and instruments every request.
func WithMetrics(metrics *observability.Metrics, promRegistry *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.metrics = metrics
		s.promRegistry = promRegistry
	}
}

// Server exposes the search dispatch over HTTP.
type Server struct {
	dispatch *builder.Dispatch
	entities *schema.Set

	logger       *observability.Logger
	metrics      *observability.Metrics
	promRegistry *prometheus.Registry
	health       *observability.HealthChecker
	contextFn    ContextFunc
}

// NewServer creates a server over the dispatch and entity set.
func NewServer(dispatch *builder.Dispatch, entities *schema.Set, opts ...ServerOption) *Server {
	s := &Server{
		dispatch:  dispatch,
		entities:  entities,
		logger:    observability.Discard(),
		contextFn: RoleHeaderContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/v1/entities", s.listEntities).Methods("GET")
	router.HandleFunc("/api/v1/search/{entity}", s.search).Methods("GET")

	if s.health != nil {
		router.HandleFunc("/health/live", s.health.Liveness).Methods("GET")
		router.HandleFunc("/health/ready", s.health.Readiness).Methods("GET")
	}
	if s.promRegistry != nil {
		router.Handle("/metrics", observability.MetricsHandler(s.promRegistry)).Methods("GET")
	}

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}
	return httputil.Chain(middlewares...)(router)
}
