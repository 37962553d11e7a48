package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// problemDetail is the RFC 7807 shape middleware itself needs to emit,
// ahead of the request reaching internal/coordinator's own error helpers.
type problemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := problemDetail{
		Type:          fmt.Sprintf("https://epyc.dev/problems/%d", status),
		Title:         title,
		Status:        status,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: GetCorrelationID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
