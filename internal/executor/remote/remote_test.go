package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/epyc-go/epyc/internal/design"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/notebook"
)

type sumExperiment struct {
	experiment.Base
}

func newSumExperiment() *sumExperiment {
	e := &sumExperiment{Base: experiment.NewBase("sum")}
	e.Base.Init(e, nil)

	return e
}

func (e *sumExperiment) Do(point experiment.Parameters) (experiment.Outcome, error) {
	return experiment.SingleOutcome(experiment.Results{"total": experiment.Int64(point["a"].Int + point["b"].Int)}), nil
}

func (e *sumExperiment) Clone() experiment.Experiment { return newSumExperiment() }

// stubCoordinator is a minimal in-memory coordinator exercising the HTTP
// surface Executor expects: submit assigns sequential job ids, poll
// reports completed once told to via resolve, cancel marks a job failed.
type stubCoordinator struct {
	nextID int
	state  map[string]string // job id -> "pending" | "completed" | "failed"
}

func newStubCoordinator() *stubCoordinator {
	return &stubCoordinator{state: map[string]string{}}
}

func (s *stubCoordinator) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		ids := make([]string, len(req.Jobs))
		for i := range req.Jobs {
			s.nextID++
			id := "job-" + string(rune('0'+s.nextID))
			s.state[id] = "pending"
			ids[i] = id
		}

		_ = json.NewEncoder(w).Encode(submitResponse{JobIDs: ids})
	})

	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Path[len("/jobs/"):]

		if id, ok := strings.CutSuffix(jobID, "/cancel"); ok {
			s.state[id] = "failed"
			w.WriteHeader(http.StatusNoContent)

			return
		}

		state := s.state[jobID]
		status := pollStatus{State: state}

		if state == "completed" {
			rec := experiment.Record{
				Metadata: experiment.Metadata{experiment.FieldStatus: experiment.Bool(true), experiment.FieldException: experiment.String("")},
				Results:  experiment.Results{"total": experiment.Int64(42)},
			}
			status.Record = &rec
		}

		_ = json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		pending := 0

		for _, st := range s.state {
			if st == "pending" {
				pending++
			}
		}

		_ = json.NewEncoder(w).Encode(statusSummary{PendingJobs: pending})
	})

	return mux
}

func newTestExecutor(t *testing.T, coord *stubCoordinator) (*Executor, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(coord.handler())
	exec := New(Config{BaseURL: srv.URL})

	return exec, srv
}

func TestSubmitBatch_AssignsJobIDs(t *testing.T) {
	coord := newStubCoordinator()
	exec, srv := newTestExecutor(t, coord)
	defer srv.Close()

	pts := []design.Point{
		{Experiment: newSumExperiment(), Parameters: experiment.Parameters{"a": experiment.Int64(1), "b": experiment.Int64(2)}},
	}

	result, err := exec.SubmitBatch(context.Background(), pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Pending) != 1 || result.Pending[0].JobID == "" {
		t.Fatalf("expected one pending submission with a job id, got %+v", result)
	}
}

func TestUpdateResults_ResolvesCompletedJob(t *testing.T) {
	coord := newStubCoordinator()
	exec, srv := newTestExecutor(t, coord)
	defer srv.Close()

	nb := notebook.New()

	pts := []design.Point{
		{Experiment: newSumExperiment(), Parameters: experiment.Parameters{"a": experiment.Int64(1), "b": experiment.Int64(2)}},
	}

	result, err := exec.SubmitBatch(context.Background(), pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobID := result.Pending[0].JobID
	if err := nb.AddPendingResult(result.Pending[0].Parameters, jobID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coord.state[jobID] = "completed"

	if err := exec.UpdateResults(context.Background(), nb, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if nb.NumberOfAllPendingResults() != 0 {
		t.Fatalf("expected job resolved, still pending")
	}
}

func TestUpdateResults_PurgesFailedJob(t *testing.T) {
	coord := newStubCoordinator()
	exec, srv := newTestExecutor(t, coord)
	defer srv.Close()

	nb := notebook.New()

	pts := []design.Point{
		{Experiment: newSumExperiment(), Parameters: experiment.Parameters{"a": experiment.Int64(1), "b": experiment.Int64(2)}},
	}

	result, err := exec.SubmitBatch(context.Background(), pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobID := result.Pending[0].JobID
	if err := nb.AddPendingResult(result.Pending[0].Parameters, jobID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coord.state[jobID] = "failed"

	if err := exec.UpdateResults(context.Background(), nb, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if nb.NumberOfAllPendingResults() != 0 {
		t.Fatalf("expected crashed job purged from pending")
	}
}

func TestReattach_DropsUnknownPendingFromBookkeeping(t *testing.T) {
	coord := newStubCoordinator()
	exec, srv := newTestExecutor(t, coord)
	defer srv.Close()

	nb := notebook.New()

	exec.mu.Lock()
	exec.pending["ghost-job"] = &jobRecord{}
	exec.mu.Unlock()

	if err := exec.Reattach(context.Background(), nb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec.mu.Lock()
	_, tracked := exec.pending["ghost-job"]
	exec.mu.Unlock()

	if tracked {
		t.Fatalf("expected ghost job id dropped after reattach finds it not pending in the notebook")
	}
}

func TestHashToken_VerifyToken_RoundTrip(t *testing.T) {
	hash, err := HashToken("worker-secret-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !VerifyToken(hash, "worker-secret-token") {
		t.Fatalf("expected token to verify against its own hash")
	}

	if VerifyToken(hash, "wrong-token") {
		t.Fatalf("expected mismatched token to fail verification")
	}
}

func TestHashToken_EmptyReturnsError(t *testing.T) {
	if _, err := HashToken(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestHashToken_LongTokenPreHashed(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}

	hash, err := HashToken(string(long))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !VerifyToken(hash, string(long)) {
		t.Fatalf("expected long token to verify against its own hash")
	}
}
