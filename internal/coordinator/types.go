// Package coordinator implements the remote executor's HTTP control
// plane: job submission, polling, and cancellation, backed by Kafka work
// and results topics consumed by cmd/worker (spec §4.7/EXP-3/EXP-5).
package coordinator

import (
	"time"

	"github.com/epyc-go/epyc/internal/experiment"
)

// SubmitJob is one point in a submit request, the wire counterpart of
// internal/executor/remote's submitJob.
type SubmitJob struct {
	ExperimentClass string                `json:"experiment_class"`
	Parameters      experiment.Parameters `json:"parameters"`
}

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	Jobs []SubmitJob `json:"jobs"`
}

// SubmitResponse is the body returned by POST /jobs.
type SubmitResponse struct {
	JobIDs []string `json:"job_ids"`
}

// JobState is one of a job's lifecycle states.
type JobState string

const (
	JobPending   JobState = "pending"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// PollStatus is the body returned by GET /jobs/{id}.
type PollStatus struct {
	State  JobState           `json:"state"`
	Record *experiment.Record `json:"record,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

// StatusSummary is the body returned by GET /status.
type StatusSummary struct {
	PendingJobs int `json:"pending_jobs"`
}

// job is the coordinator's own bookkeeping record for a submitted point.
type job struct {
	id              string
	experimentClass string
	parameters      experiment.Parameters
	state           JobState
	record          *experiment.Record
	reason          string
	workerID        string
	createdAt       time.Time
}
