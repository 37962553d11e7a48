package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/epyc-go/epyc/internal/experiment"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := LoadServerConfig()
	store := NewInMemoryJobStore()
	auth := NewWorkerTokenStore()

	if err := auth.Register("worker-1", "test-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// No KafkaTransport: exercises the nil-transport path, matching a lab
	// driving Sequential/LocalParallel locally without a coordinator.
	return NewServer(&cfg, store, nil, auth)
}

func (s *Server) testHandler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	return mux
}

func TestHandleSubmitAndPoll(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.testHandler()

	body, err := json.Marshal(SubmitRequest{Jobs: []SubmitJob{
		{ExperimentClass: "sum", Parameters: experiment.Parameters{"x": experiment.Int64(1)}},
	}})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var submitResp SubmitResponse
	if err := json.NewDecoder(rec.Body).Decode(&submitResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(submitResp.JobIDs) != 1 {
		t.Fatalf("expected 1 job id, got %d", len(submitResp.JobIDs))
	}

	pollReq := httptest.NewRequest(http.MethodGet, "/jobs/"+submitResp.JobIDs[0], nil)
	pollRec := httptest.NewRecorder()

	handler.ServeHTTP(pollRec, pollReq)

	if pollRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", pollRec.Code, pollRec.Body.String())
	}

	var status PollStatus
	if err := json.NewDecoder(pollRec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	if status.State != JobPending {
		t.Fatalf("expected pending, got %s", status.State)
	}
}

func TestHandlePoll_UnknownJob(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.testHandler()

	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleSubmit_RejectsEmptyBatch(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.testHandler()

	body, err := json.Marshal(SubmitRequest{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCancel(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.testHandler()

	if err := srv.store.Create("job-1", "sum", experiment.Parameters{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jobs/job-1/cancel", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	status, err := srv.store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if status.State != JobFailed || status.Reason != "cancelled" {
		t.Fatalf("expected failed/cancelled, got %s/%s", status.State, status.Reason)
	}
}

func TestHandleStatusAndPing(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.testHandler()

	if err := srv.store.Create("job-1", "sum", experiment.Parameters{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	var summary StatusSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if summary.PendingJobs != 1 {
		t.Fatalf("expected 1 pending job, got %d", summary.PendingJobs)
	}

	pingReq := httptest.NewRequest(http.MethodGet, "/ping", nil)
	pingRec := httptest.NewRecorder()

	handler.ServeHTTP(pingRec, pingReq)

	if pingRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", pingRec.Code)
	}
}
