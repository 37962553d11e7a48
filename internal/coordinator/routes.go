package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/epyc-go/epyc/internal/coordinator/middleware"
)

func (s *Server) setupRoutes(mux *http.ServeMux) {
	for _, path := range []string{"/ping", "/health", "/status"} {
		middleware.RegisterPublicPath(path)
	}

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /jobs", s.handleSubmit)
	mux.HandleFunc("GET /jobs/{id}", s.handlePoll)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancel)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StatusSummary{PendingJobs: s.store.PendingCount()})
}

// handleSubmit accepts a batch of design points, assigns each a job id,
// records it in the JobStore, and publishes it to the Kafka work topic
// for cmd/worker to pick up (spec §4.7's remote executor submit path).
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("expected application/json"))

		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("malformed request body: "+err.Error()))

		return
	}

	if len(req.Jobs) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("jobs must not be empty"))

		return
	}

	jobIDs := make([]string, 0, len(req.Jobs))

	for _, submitJob := range req.Jobs {
		jobID := uuid.NewString()

		if err := s.store.Create(jobID, submitJob.ExperimentClass, submitJob.Parameters); err != nil {
			WriteErrorResponse(w, r, s.logger, InternalServerError("failed to record job: "+err.Error()))

			return
		}

		if s.transport != nil {
			if err := s.transport.PublishWork(r.Context(), jobID, submitJob.ExperimentClass, submitJob.Parameters); err != nil {
				WriteErrorResponse(w, r, s.logger, InternalServerError("failed to publish job: "+err.Error()))

				return
			}
		}

		jobIDs = append(jobIDs, jobID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(SubmitResponse{JobIDs: jobIDs})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	status, err := s.store.Get(jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("unknown job id: "+jobID))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// handleCancel marks a pending job failed with a cancellation reason.
// It does not attempt to interrupt a worker already running the job;
// the worker's own result, if it arrives later, is simply ignored by an
// already-terminal job (spec §4.7's "best-effort cancel").
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := s.store.MarkFailed(jobID, "", "cancelled"); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("unknown job id: "+jobID))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError(err.Error()))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
