package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// workerContextKey is the context key for an authenticated worker.
type workerContextKey struct{}

// WorkerContext carries the identity of the worker that authenticated a
// request, the coordinator-side analogue of internal/api/middleware's
// PluginContext.
type WorkerContext struct {
	WorkerID string
	AuthTime time.Time
}

// GetWorkerContext extracts the worker context set by AuthenticateWorker.
func GetWorkerContext(ctx context.Context) (WorkerContext, bool) {
	wc, ok := ctx.Value(workerContextKey{}).(WorkerContext)

	return wc, ok
}

func setWorkerContext(ctx context.Context, wc WorkerContext) context.Context {
	return context.WithValue(ctx, workerContextKey{}, wc)
}

// publicPaths bypass worker authentication entirely (health probes only).
var publicPaths = map[string]bool{} //nolint:gochecknoglobals

// RegisterPublicPath marks path as bypassing AuthenticateWorker.
func RegisterPublicPath(path string) {
	publicPaths[path] = true
}

// Authenticator verifies a bearer token and reports the worker id that
// owns it, mirroring internal/storage.APIKeyStore's lookup shape but
// keyed by worker token instead of plugin API key.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (workerID string, err error)
}

// ErrMissingToken is returned (wrapped) when no bearer token is supplied.
var ErrMissingToken = errors.New("missing worker token")

// ErrInvalidToken is returned (wrapped) when the bearer token is unknown
// or its hash does not verify.
var ErrInvalidToken = errors.New("invalid worker token")

// AuthenticateWorker validates the Authorization: Bearer header against
// auth, rejecting unauthenticated non-public requests with a 401 RFC 7807
// problem (mirrors internal/api/middleware/plugin_auth.go's flow, one
// credential type down: worker bearer tokens instead of plugin API keys).
func AuthenticateWorker(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			correlationID := GetCorrelationID(r.Context())

			token, ok := extractBearerToken(r)
			if !ok {
				logger.Error("worker authentication failed",
					slog.String("correlation_id", correlationID),
					slog.String("reason", ErrMissingToken.Error()),
				)
				writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "missing worker bearer token")

				return
			}

			workerID, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Error("worker authentication failed",
					slog.String("correlation_id", correlationID),
					slog.String("reason", err.Error()),
				)
				writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid worker bearer token")

				return
			}

			ctx := setWorkerContext(r.Context(), WorkerContext{WorkerID: workerID, AuthTime: time.Now()})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" || strings.ContainsAny(token, "\r\n") {
		return "", false
	}

	return token, true
}
