package http

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewMiddleware traces handler with otelhttp. debug, when non-nil, is applied
// outside the tracing handler so that the request instrumentation is already
// in the context every span of the request is started with.
func NewMiddleware(handler http.Handler, operation string, debug func(http.Handler) http.Handler) http.Handler {
	traced := otelhttp.NewHandler(handler, operation)
	if debug == nil {
		return traced
	}
	return debug(traced)
}
