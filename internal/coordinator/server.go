package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epyc-go/epyc/internal/coordinator/middleware"
)

// Server is the remote executor's HTTP control plane (spec §4.7): it
// accepts job submissions, answers polls, forwards cancellations, and
// relays completions/failures a worker publishes back over Kafka.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	store      JobStore
	transport  *KafkaTransport
	auth       *WorkerTokenStore
	limiter    *middleware.InMemoryRateLimiter
	startTime  time.Time
}

// NewServer wires a Server around store/transport/auth, following
// internal/api.NewServer's explicit-dependency-injection shape.
func NewServer(cfg *ServerConfig, store JobStore, transport *KafkaTransport, auth *WorkerTokenStore) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if store == nil {
		logger.Error("coordinator: JobStore is required")
		panic("coordinator: JobStore cannot be nil")
	}

	limiter := middleware.NewInMemoryRateLimiter(middleware.Config{
		GlobalRPS: cfg.GlobalRPS,
		WorkerRPS: cfg.WorkerRPS,
	})

	mux := http.NewServeMux()

	server := &Server{
		logger:    logger,
		config:    cfg,
		store:     store,
		transport: transport,
		auth:      auth,
		limiter:   limiter,
	}

	server.setupRoutes(mux)

	var authenticator middleware.Authenticator
	if auth != nil {
		authenticator = auth
	}

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithWorkerAuth(authenticator, logger),
		middleware.WithRateLimit(limiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start runs the results-topic consumer and HTTP server, blocking until
// shutdown (spec §4.7 "the coordinator relays worker-published results
// back to pollers").
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid coordinator configuration: %w", err)
	}

	s.startTime = time.Now()

	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	defer cancelConsume()

	if s.transport != nil {
		go s.transport.ConsumeResults(consumeCtx)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting coordinator", slog.String("address", s.config.Address()))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("coordinator server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("coordinator received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("coordinator shutdown failed: %w", err)
	}

	s.limiter.Close()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Error("coordinator: closing kafka transport", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("coordinator shutdown complete")

	return nil
}
