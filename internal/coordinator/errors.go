package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/epyc-go/epyc/internal/coordinator/middleware"
)

// ProblemDetail is an RFC 7807 problem response, mirroring internal/api's
// ProblemDetail for the job control-plane.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail builds a ProblemDetail for status with a type URI
// derived from it.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://epyc.dev/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WriteErrorResponse writes problem as an application/problem+json body,
// filling in correlation id and instance path if not already set.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	if problem.CorrelationID == "" {
		problem.CorrelationID = middleware.GetCorrelationID(r.Context())
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("coordinator: failed to encode error response",
			slog.String("correlation_id", problem.CorrelationID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}

func UnsupportedMediaType(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusUnsupportedMediaType, "Unsupported Media Type", detail)
}
