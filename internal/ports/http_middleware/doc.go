// Package http_middleware provides the debug middleware in the
// func(http.Handler) http.Handler shape routers such as chi expect. It
// consults the configuration once and degrades to a no-op when the debugger
// is disabled.
package http_middleware
