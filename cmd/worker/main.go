// Package main provides the worker process of spec §4.7's remote
// executor: it consumes design points off labd's Kafka work topic, runs
// the named experiment class to completion, and publishes exactly one
// terminal record back onto the results topic (EXP-5's "a worker
// publishes exactly one terminal record per job"), whether the run
// succeeded or failed. A job that cannot be decoded or whose class is not
// registered is published as a failed result without a record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/segmentio/kafka-go"

	"github.com/epyc-go/epyc/internal/coordinator"
	"github.com/epyc-go/epyc/internal/experiment"
)

const (
	version = "0.1.0-dev"
	name    = "worker"

	defaultWorkerGroupID = "epyc-worker"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := loadKafkaConfig()

	registry := experiment.NewRegistry()
	registerBuiltinExperiments(registry)

	logger.Info("starting worker",
		slog.String("service", name),
		slog.String("version", version),
		slog.Any("kafka_brokers", cfg.Brokers),
		slog.String("work_topic", cfg.WorkTopic),
		slog.String("result_topic", cfg.ResultTopic),
		slog.Any("registered_classes", registry.Classes()),
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.WorkTopic,
		GroupID: cfg.GroupID,
	})
	defer func() { _ = reader.Close() }()

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.ResultTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer func() { _ = writer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runLoop(ctx, reader, writer, registry, logger)

	logger.Info("worker stopped")
}

func loadKafkaConfig() coordinator.KafkaConfig {
	cfg := coordinator.KafkaConfig{
		Brokers:     []string{"localhost:9092"},
		WorkTopic:   coordinator.DefaultWorkTopic,
		ResultTopic: coordinator.DefaultResultTopic,
		GroupID:     defaultWorkerGroupID,
	}

	if brokers := os.Getenv("EPYC_KAFKA_BROKERS"); brokers != "" {
		cfg.Brokers = strings.Split(brokers, ",")
	}

	if topic := os.Getenv("EPYC_KAFKA_WORK_TOPIC"); topic != "" {
		cfg.WorkTopic = topic
	}

	if topic := os.Getenv("EPYC_KAFKA_RESULT_TOPIC"); topic != "" {
		cfg.ResultTopic = topic
	}

	if groupID := os.Getenv("EPYC_WORKER_GROUP_ID"); groupID != "" {
		cfg.GroupID = groupID
	}

	return cfg
}

// runLoop consumes cfg.WorkTopic until ctx is cancelled, running each job
// and publishing its outcome. A decode or registry-lookup failure is
// reported back as a failed job rather than crashing the worker, since
// one malformed job must never take the whole consumer down.
func runLoop(ctx context.Context, reader *kafka.Reader, writer *kafka.Writer, registry *experiment.Registry, logger *slog.Logger) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			logger.Error("failed to read work message", slog.String("error", err.Error()))

			continue
		}

		result := runJob(ctx, msg, registry, logger)

		payload, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to encode result message",
				slog.String("job_id", result.JobID), slog.String("error", err.Error()))

			continue
		}

		if err := writer.WriteMessages(ctx, kafka.Message{Key: []byte(result.JobID), Value: payload}); err != nil {
			logger.Error("failed to publish result message",
				slog.String("job_id", result.JobID), slog.String("error", err.Error()))
		}
	}
}

func runJob(_ context.Context, msg kafka.Message, registry *experiment.Registry, logger *slog.Logger) coordinator.ResultMessage {
	var work coordinator.WorkMessage
	if err := json.Unmarshal(msg.Value, &work); err != nil {
		logger.Error("failed to decode work message", slog.String("error", err.Error()))

		return coordinator.ResultMessage{JobID: string(msg.Key), Failed: true, Reason: "malformed work message: " + err.Error()}
	}

	exp, err := registry.New(work.ExperimentClass)
	if err != nil {
		logger.Error("failed to construct experiment",
			slog.String("job_id", work.JobID), slog.String("error", err.Error()))

		return coordinator.ResultMessage{JobID: work.JobID, Failed: true, Reason: err.Error()}
	}

	record := exp.Set(work.Parameters).Run()

	if !record.Success() {
		logger.Warn("experiment run failed",
			slog.String("job_id", work.JobID), slog.String("exception", record.Exception()))
	}

	return coordinator.ResultMessage{JobID: work.JobID, Record: &record}
}
