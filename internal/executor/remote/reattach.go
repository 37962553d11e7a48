package remote

import (
	"context"
	"fmt"

	"github.com/epyc-go/epyc/internal/notebook"
)

// statusSummary mirrors the coordinator's GET /status response: a tally of
// the cluster's outstanding work. Reattach fetches it only as a
// reachability probe; the tally itself is not read.
type statusSummary struct {
	PendingJobs int `json:"pending_jobs"`
}

// Reattach reconciles this Executor's local pending-job bookkeeping
// against the notebook after a lab process restart or a lost connection,
// supplementing spec EXP-3's cluster-reattachment behaviour
// (original_source/epyc/clusterlab.py's open(), which re-probes an
// already-configured cluster connection instead of re-submitting work).
// It probes the coordinator's GET /status, trying up to cfg.Reconnections
// times, then tracks every job id nb lists as pending and drops from its
// own bookkeeping any id nb no longer lists. No job is polled here; jobs
// the coordinator no longer knows surface as failed polls in
// UpdateResults and are marked crashed once Retries is exhausted.
func (e *Executor) Reattach(ctx context.Context, nb *notebook.Notebook) error {
	var (
		summary statusSummary
		err     error
	)

	for attempt := 0; attempt < e.cfg.Reconnections; attempt++ {
		if err = e.get(ctx, "/status", &summary); err == nil {
			break
		}
	}

	if err != nil {
		return fmt.Errorf("executor/remote: reattach: %w", err)
	}

	jobIDs := nb.PendingJobIDs()

	e.mu.Lock()
	defer e.mu.Unlock()

	known := make(map[string]struct{}, len(jobIDs))
	for _, jobID := range jobIDs {
		known[jobID] = struct{}{}

		if _, tracked := e.pending[jobID]; !tracked {
			e.pending[jobID] = &jobRecord{}
		}
	}

	for jobID := range e.pending {
		if _, stillPending := known[jobID]; !stillPending {
			delete(e.pending, jobID)
		}
	}

	return nil
}
