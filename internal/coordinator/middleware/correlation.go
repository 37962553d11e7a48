// Package middleware provides HTTP middleware for internal/coordinator,
// adapted from internal/api/middleware for the job control-plane.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const correlationIDSize = 8

type correlationIDKey struct{}

// CorrelationID adds an X-Correlation-ID to the request context and
// response, reusing any id the caller already supplied.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = generateCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation id from ctx, or "unknown".
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

func generateCorrelationID() string {
	b := make([]byte, correlationIDSize)
	if _, err := rand.Read(b); err != nil {
		return "unavailable"
	}

	return hex.EncodeToString(b)
}
