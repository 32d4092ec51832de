package debughttp

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fllarpy/api-debugger/domain"
	"github.com/fllarpy/api-debugger/internal/application/collector"
)

// Middleware is an HTTP middleware that collects per-request debug data and
// hands the finished response to hooks before it is written.
func Middleware(hooks domain.CompletionHook, logger *zap.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Create the instrumentation scope for this request.
		ctx := collector.WithInstrumentation(r.Context())
		r = r.WithContext(ctx)

		buf := newBufferedResponse(w)
		next.ServeHTTP(buf, r)

		if err := hooks.OnRequestCompleted(r, buf); err != nil {
			logger.Warn("debug section not attached",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
		}

		if err := buf.flushTo(w); err != nil {
			logger.Debug("writing response failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
	})
}
