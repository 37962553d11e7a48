package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstMultiplier       = 2
	cleanupInterval       = 5 * time.Minute
	idleTimeout           = time.Hour
)

// RateLimiter decides whether a request from workerID (empty for an
// unauthenticated caller) may proceed.
type RateLimiter interface {
	Allow(workerID string) bool
}

// Config configures InMemoryRateLimiter's two tiers.
type Config struct {
	GlobalRPS int
	WorkerRPS int
}

// InMemoryRateLimiter enforces a global poll-rate ceiling plus a
// per-worker ceiling, mirroring internal/api/middleware/ratelimit.go's
// global/per-plugin token-bucket design one tier down (plugin -> worker).
type InMemoryRateLimiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	perWorker map[string]*workerLimiter

	workerRPS int
	done      chan struct{}
}

type workerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewInMemoryRateLimiter constructs the limiter and starts its idle-entry
// cleanup goroutine; call Close when the coordinator shuts down.
func NewInMemoryRateLimiter(cfg Config) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global:    rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalRPS*burstMultiplier),
		perWorker: make(map[string]*workerLimiter),
		workerRPS: cfg.WorkerRPS,
		done:      make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow implements RateLimiter.
func (rl *InMemoryRateLimiter) Allow(workerID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if workerID == "" {
		return true
	}

	rl.mu.Lock()
	wl, ok := rl.perWorker[workerID]
	if !ok {
		wl = &workerLimiter{limiter: rate.NewLimiter(rate.Limit(rl.workerRPS), rl.workerRPS*burstMultiplier)}
		rl.perWorker[workerID] = wl
	}
	wl.lastAccess = time.Now()
	rl.mu.Unlock()

	return wl.limiter.Allow()
}

// Close stops the cleanup goroutine.
func (rl *InMemoryRateLimiter) Close() {
	close(rl.done)
}

func (rl *InMemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *InMemoryRateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, wl := range rl.perWorker {
		if now.Sub(wl.lastAccess) > idleTimeout {
			delete(rl.perWorker, id)
		}
	}
}

// RateLimit applies limiter, identifying the caller via WorkerContext when
// present and falling back to the unauthenticated tier otherwise.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			workerID := ""
			if wc, ok := GetWorkerContext(r.Context()); ok {
				workerID = wc.WorkerID
			}

			if !limiter.Allow(workerID) {
				correlationID := GetCorrelationID(r.Context())

				logger.Warn("rate limit exceeded",
					slog.String("worker_id", workerID),
					slog.String("correlation_id", correlationID),
				)

				writeProblem(w, r, http.StatusTooManyRequests, "Too Many Requests",
					"rate limit exceeded, retry after a short backoff")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
