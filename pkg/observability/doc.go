// Package observability provides the shared operational plumbing: a
// structured slog-backed logger with context propagation, Prometheus
// metrics for the search pipeline, an OpenTelemetry tracer handle,
// health checks for the backing stores, panic recovery helpers and
// graceful shutdown for the HTTP server.
package observability
