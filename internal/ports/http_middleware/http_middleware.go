package http_middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fllarpy/api-debugger/config"
	"github.com/fllarpy/api-debugger/domain"
	"github.com/fllarpy/api-debugger/internal/adapters/debughttp"
)

// DebugMiddleware creates a new HTTP middleware that attaches the debug
// section to JSON responses. It returns a function that takes an http.Handler
// and returns an http.Handler.
func DebugMiddleware(cfg *config.Config, hooks domain.CompletionHook, logger *zap.Logger) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled || hooks == nil {
		// If disabled, return a no-op middleware.
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return debughttp.Middleware(hooks, logger, next)
	}
}
