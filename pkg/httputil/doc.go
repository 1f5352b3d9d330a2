// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON responses, request parsing and common middleware.
package httputil
