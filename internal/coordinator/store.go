package coordinator

import (
	"errors"
	"sync"
	"time"

	"github.com/epyc-go/epyc/internal/experiment"
)

// ErrJobNotFound is returned for an unknown job id.
var ErrJobNotFound = errors.New("coordinator: job not found")

// JobStore tracks every job the coordinator has accepted, independent of
// the Kafka transport that actually moves work to and from workers.
type JobStore interface {
	Create(jobID, experimentClass string, parameters experiment.Parameters) error
	Get(jobID string) (PollStatus, error)
	MarkCompleted(jobID string, record experiment.Record) error
	MarkFailed(jobID, workerID, reason string) error
	PendingCount() int
}

// InMemoryJobStore is the default JobStore backend (spec §4.7 ambient
// storage: the coordinator's control plane doesn't need to survive a
// restart the way a Notebook does; a restarted coordinator simply drops
// in-flight jobs, and the remote executor's polls for them then fail until
// its Retries are exhausted and the jobs are marked crashed).
type InMemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

// NewInMemoryJobStore creates an empty store.
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: map[string]*job{}}
}

func (s *InMemoryJobStore) Create(jobID, experimentClass string, parameters experiment.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[jobID] = &job{
		id:              jobID,
		experimentClass: experimentClass,
		parameters:      parameters,
		state:           JobPending,
		createdAt:       time.Now(),
	}

	return nil
}

func (s *InMemoryJobStore) Get(jobID string) (PollStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return PollStatus{}, ErrJobNotFound
	}

	return PollStatus{State: j.state, Record: j.record, Reason: j.reason}, nil
}

// MarkCompleted transitions jobID to JobCompleted. A job already in a
// terminal state (JobCompleted or JobFailed) is left untouched: spec §5's
// cancellation semantics require that once an experiment has genuinely
// completed, a cancel request racing in after it never downgrades the
// result, and a job already marked completed or failed has nothing left
// to transition to anyway.
func (s *InMemoryJobStore) MarkCompleted(jobID string, record experiment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if j.state == JobCompleted || j.state == JobFailed {
		return nil
	}

	j.state = JobCompleted
	j.record = &record

	return nil
}

// MarkFailed transitions jobID to JobFailed, unless it has already
// completed: "if the experiment completes between the cancel request and
// the executor's acknowledgement, the completion wins" (spec §5), so a
// cancel or a late worker failure report can never flip an already-
// completed job back to failed. A job already failed is left untouched
// too, so the first failure reason recorded sticks.
func (s *InMemoryJobStore) MarkFailed(jobID, workerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if j.state == JobCompleted || j.state == JobFailed {
		return nil
	}

	j.state = JobFailed
	j.reason = reason
	j.workerID = workerID

	return nil
}

func (s *InMemoryJobStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0

	for _, j := range s.jobs {
		if j.state == JobPending {
			n++
		}
	}

	return n
}
