package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/epyc-go/epyc/internal/experiment"
)

// WorkMessage is what the coordinator publishes to the work topic for
// cmd/worker to consume, and ResultMessage is what a worker publishes
// back to the results topic once it runs the job (spec §4.7's remote
// executor transport, EXP-5's Kafka-backed campaign distribution).
// Parameters/Record reuse experiment.Value's {"kind", "value"} codec
// (internal/experiment/value_json.go), so this is the same wire form the
// Postgres notebook backend already persists.
type WorkMessage struct {
	JobID           string                `json:"job_id"`
	ExperimentClass string                `json:"experiment_class"`
	Parameters      experiment.Parameters `json:"parameters"`
}

// ResultMessage is the results-topic payload a worker emits once a job
// finishes, successfully or not.
type ResultMessage struct {
	JobID    string             `json:"job_id"`
	WorkerID string             `json:"worker_id"`
	Failed   bool               `json:"failed"`
	Reason   string             `json:"reason,omitempty"`
	Record   *experiment.Record `json:"record,omitempty"`
}

// KafkaTransport produces to the work topic and consumes the results
// topic, feeding completed/failed jobs back into a JobStore.
type KafkaTransport struct {
	writer *kafka.Writer
	reader *kafka.Reader
	store  JobStore
	logger *slog.Logger
}

// KafkaConfig configures the broker addresses and topic names.
type KafkaConfig struct {
	Brokers     []string
	WorkTopic   string
	ResultTopic string
	GroupID     string
}

// NewKafkaTransport constructs a transport against cfg, writing to
// WorkTopic and reading from ResultTopic under GroupID.
func NewKafkaTransport(cfg KafkaConfig, store JobStore, logger *slog.Logger) *KafkaTransport {
	return &KafkaTransport{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.WorkTopic,
			Balancer: &kafka.LeastBytes{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.ResultTopic,
			GroupID: cfg.GroupID,
		}),
		store:  store,
		logger: logger,
	}
}

// PublishWork writes one job onto the work topic, keyed by job id so all
// retries/replays of the same job land on the same partition.
func (t *KafkaTransport) PublishWork(
	ctx context.Context, jobID, experimentClass string, parameters experiment.Parameters,
) error {
	msg := WorkMessage{JobID: jobID, ExperimentClass: experimentClass, Parameters: parameters}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("coordinator: encode work message: %w", err)
	}

	if err := t.writer.WriteMessages(ctx, kafka.Message{Key: []byte(jobID), Value: payload}); err != nil {
		return fmt.Errorf("coordinator: publish work message: %w", err)
	}

	return nil
}

// ConsumeResults blocks reading the results topic until ctx is cancelled,
// applying each message to store. Meant to run in its own goroutine for
// the lifetime of the coordinator process.
func (t *KafkaTransport) ConsumeResults(ctx context.Context) {
	for {
		msg, err := t.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			t.logger.Error("coordinator: read result message", slog.String("error", err.Error()))

			continue
		}

		var result ResultMessage
		if err := json.Unmarshal(msg.Value, &result); err != nil {
			t.logger.Error("coordinator: decode result message", slog.String("error", err.Error()))

			continue
		}

		t.apply(result)
	}
}

func (t *KafkaTransport) apply(result ResultMessage) {
	if result.Failed {
		if err := t.store.MarkFailed(result.JobID, result.WorkerID, result.Reason); err != nil {
			t.logger.Error("coordinator: mark job failed",
				slog.String("job_id", result.JobID), slog.String("error", err.Error()))
		}

		return
	}

	if result.Record == nil {
		t.logger.Error("coordinator: completed result missing record", slog.String("job_id", result.JobID))

		return
	}

	if err := t.store.MarkCompleted(result.JobID, *result.Record); err != nil {
		t.logger.Error("coordinator: mark job completed",
			slog.String("job_id", result.JobID), slog.String("error", err.Error()))
	}
}

// Close releases the writer and reader.
func (t *KafkaTransport) Close() error {
	werr := t.writer.Close()
	rerr := t.reader.Close()

	if werr != nil {
		return fmt.Errorf("coordinator: close kafka writer: %w", werr)
	}

	if rerr != nil {
		return fmt.Errorf("coordinator: close kafka reader: %w", rerr)
	}

	return nil
}
