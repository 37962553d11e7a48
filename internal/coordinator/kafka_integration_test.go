package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/epyc-go/epyc/internal/experiment"
)

func buildResultMessage(t *testing.T, jobID, workerID string, record experiment.Record) kafka.Message {
	t.Helper()

	payload, err := json.Marshal(ResultMessage{JobID: jobID, WorkerID: workerID, Record: &record})
	if err != nil {
		t.Fatalf("marshal result message: %v", err)
	}

	return kafka.Message{Key: []byte(jobID), Value: payload}
}

// TestKafkaTransport_PublishAndConsume exercises the real wire path: a
// KafkaTransport publishes a job, a second transport (standing in for
// cmd/worker) consumes it off the work topic, and a result published back
// onto the results topic is picked up by the original transport's
// ConsumeResults loop and applied to its JobStore.
func TestKafkaTransport_PublishAndConsume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.6.0")
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	defer func() {
		_ = testcontainers.TerminateContainer(container)
	}()

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get brokers: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := NewInMemoryJobStore()
	if err := store.Create("job-1", "sum", experiment.Parameters{"x": experiment.Int64(2)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	cfg := KafkaConfig{
		Brokers:     brokers,
		WorkTopic:   "epyc.jobs.work.test",
		ResultTopic: "epyc.jobs.results.test",
		GroupID:     "epyc-coordinator-test",
	}

	coordinatorTransport := NewKafkaTransport(cfg, store, logger)
	defer func() { _ = coordinatorTransport.Close() }()

	if err := coordinatorTransport.PublishWork(ctx, "job-1", "sum", experiment.Parameters{"x": experiment.Int64(2)}); err != nil {
		t.Fatalf("PublishWork: %v", err)
	}

	workerCfg := cfg
	workerCfg.GroupID = "epyc-worker-test"
	workerTransport := NewKafkaTransport(workerCfg, NewInMemoryJobStore(), logger)
	defer func() { _ = workerTransport.Close() }()

	msg, err := workerTransport.reader.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("worker failed to read work message: %v", err)
	}

	if string(msg.Key) != "job-1" {
		t.Fatalf("expected key job-1, got %s", string(msg.Key))
	}

	consumeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	go coordinatorTransport.ConsumeResults(consumeCtx)

	record := experiment.Record{Results: experiment.Results{"y": experiment.Int64(4)}}

	if err := workerTransport.writer.WriteMessages(ctx, buildResultMessage(t, "job-1", "worker-1", record)); err != nil {
		t.Fatalf("failed to publish result: %v", err)
	}

	deadline := time.Now().Add(20 * time.Second)

	for time.Now().Before(deadline) {
		status, err := store.Get("job-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}

		if status.State == JobCompleted {
			if status.Record == nil || status.Record.Results["y"].Int != 4 {
				t.Fatalf("expected result y=4, got %+v", status.Record)
			}

			return
		}

		time.Sleep(200 * time.Millisecond)
	}

	t.Fatal("timed out waiting for job-1 to be marked completed")
}
