package middleware

import (
	"log/slog"
	"net/http"
)

// Option applies one middleware layer to a handler.
type Option func(http.Handler) http.Handler

// Apply wraps handler with options in the order listed (first option is
// outermost), mirroring internal/api/middleware.Apply.
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithCorrelationID adds correlation-id middleware.
func WithCorrelationID() Option {
	return func(next http.Handler) http.Handler { return CorrelationID()(next) }
}

// WithRecovery adds panic-recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return Recovery(logger)(next) }
}

// WithWorkerAuth adds worker bearer-token authentication. A nil auth
// disables it (local/dev mode, matching WithAuthPlugin's nil-store skip).
func WithWorkerAuth(auth Authenticator, logger *slog.Logger) Option {
	if auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler { return AuthenticateWorker(auth, logger)(next) }
}

// WithRateLimit adds rate-limiting middleware. A nil limiter disables it.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler { return RateLimit(limiter, logger)(next) }
}

// WithRequestLogger adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return RequestLogger(logger)(next) }
}

// WithCORS adds CORS header middleware.
func WithCORS(config CORSConfig) Option {
	return func(next http.Handler) http.Handler { return CORS(config)(next) }
}
