// Package httpapi exposes searches over HTTP. Query-string parameters map
// directly onto search parameters, so the wire surface inherits the
// builder's guarantees: unauthorized or unknown filters are silently
// ignored, never reflected back to the caller.
package httpapi
