// Package main provides labd, the remote executor's coordinator process:
// an HTTP control-plane a lab's Remote executor submits and polls jobs
// against, and a Kafka bridge that hands those jobs to cmd/worker and
// relays its results back (spec §4.7, EXP-2/EXP-4).
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/epyc-go/epyc/internal/coordinator"
)

const (
	version = "0.1.0-dev"
	name    = "labd"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	cfg := coordinator.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	logger.Info("starting labd coordinator",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("address", cfg.Address()),
		slog.Any("kafka_brokers", cfg.Kafka.Brokers),
	)

	store := coordinator.NewInMemoryJobStore()

	transport := coordinator.NewKafkaTransport(cfg.Kafka, store, logger)

	auth := coordinator.NewWorkerTokenStore()
	registerLabTokens(auth, logger)

	server := coordinator.NewServer(&cfg, store, transport, auth)

	if err := server.Start(); err != nil {
		logger.Error("labd failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("labd stopped")
}

// registerLabTokens loads EPYC_LAB_TOKENS, a comma-separated list of
// "labID:token" pairs, into auth. Absent the variable, the coordinator
// still starts but every /jobs request is rejected for lack of a
// registered token (spec §5's "remote executor... reconnection" requires
// a lab to authenticate, not run anonymously).
func registerLabTokens(auth *coordinator.WorkerTokenStore, logger *slog.Logger) {
	raw := os.Getenv("EPYC_LAB_TOKENS")
	if raw == "" {
		logger.Warn("EPYC_LAB_TOKENS not set - no lab will be able to authenticate against labd")

		return
	}

	for _, pair := range strings.Split(raw, ",") {
		labID, token, ok := strings.Cut(pair, ":")
		if !ok || labID == "" || token == "" {
			logger.Error("malformed EPYC_LAB_TOKENS entry, skipping", slog.String("entry", pair))

			continue
		}

		if err := auth.Register(labID, token); err != nil {
			logger.Error("failed to register lab token",
				slog.String("lab_id", labID), slog.String("error", err.Error()))

			continue
		}

		logger.Info("registered lab token", slog.String("lab_id", labID))
	}
}
