package coordinator

import (
	"errors"
	"testing"

	"github.com/epyc-go/epyc/internal/experiment"
)

func TestInMemoryJobStore_CreateGet(t *testing.T) {
	store := NewInMemoryJobStore()

	params := experiment.Parameters{"x": experiment.Int64(1)}

	if err := store.Create("job-1", "sum", params); err != nil {
		t.Fatalf("Create: %v", err)
	}

	status, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if status.State != JobPending {
		t.Fatalf("expected pending, got %s", status.State)
	}

	if store.PendingCount() != 1 {
		t.Fatalf("expected 1 pending job, got %d", store.PendingCount())
	}
}

func TestInMemoryJobStore_GetUnknown(t *testing.T) {
	store := NewInMemoryJobStore()

	if _, err := store.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobStore_MarkCompleted(t *testing.T) {
	store := NewInMemoryJobStore()

	params := experiment.Parameters{"x": experiment.Int64(1)}
	if err := store.Create("job-1", "sum", params); err != nil {
		t.Fatalf("Create: %v", err)
	}

	record := experiment.Record{Results: experiment.Results{"y": experiment.Int64(2)}}

	if err := store.MarkCompleted("job-1", record); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	status, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if status.State != JobCompleted {
		t.Fatalf("expected completed, got %s", status.State)
	}

	if status.Record == nil || status.Record.Results["y"].Int != 2 {
		t.Fatalf("expected result y=2, got %+v", status.Record)
	}

	if store.PendingCount() != 0 {
		t.Fatalf("expected 0 pending jobs, got %d", store.PendingCount())
	}
}

func TestInMemoryJobStore_MarkFailed(t *testing.T) {
	store := NewInMemoryJobStore()

	params := experiment.Parameters{}
	if err := store.Create("job-1", "sum", params); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.MarkFailed("job-1", "worker-1", "panic"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	status, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if status.State != JobFailed || status.Reason != "panic" {
		t.Fatalf("expected failed/panic, got %s/%s", status.State, status.Reason)
	}
}

func TestInMemoryJobStore_MarkFailedDoesNotDowngradeCompleted(t *testing.T) {
	store := NewInMemoryJobStore()

	if err := store.Create("job-1", "sum", experiment.Parameters{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	record := experiment.Record{Results: experiment.Results{"y": experiment.Int64(2)}}
	if err := store.MarkCompleted("job-1", record); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	// A cancel racing in after the worker's result already landed must not
	// flip the job back to failed (spec §5: "completion wins").
	if err := store.MarkFailed("job-1", "", "cancelled"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	status, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if status.State != JobCompleted {
		t.Fatalf("expected completed job to stay completed, got %s", status.State)
	}

	if status.Record == nil || status.Record.Results["y"].Int != 2 {
		t.Fatalf("expected the original result to survive the late cancel, got %+v", status.Record)
	}
}

func TestInMemoryJobStore_MarkCompletedDoesNotOverwriteFailed(t *testing.T) {
	store := NewInMemoryJobStore()

	if err := store.Create("job-1", "sum", experiment.Parameters{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.MarkFailed("job-1", "worker-1", "panic"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	record := experiment.Record{Results: experiment.Results{"y": experiment.Int64(9)}}
	if err := store.MarkCompleted("job-1", record); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	status, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if status.State != JobFailed || status.Reason != "panic" {
		t.Fatalf("expected job to stay failed/panic, got %s/%s", status.State, status.Reason)
	}
}

func TestInMemoryJobStore_MarkCompletedUnknown(t *testing.T) {
	store := NewInMemoryJobStore()

	if err := store.MarkCompleted("missing", experiment.Record{}); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
