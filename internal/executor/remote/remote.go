// Package remote implements the Remote Executor variant of spec §4.7: an
// HTTP client to internal/coordinator's control plane, the only Executor
// that introduces job ids and a pending-resolution loop. Transport
// between the coordinator and cmd/worker is Kafka (internal/coordinator,
// cmd/worker); this package only ever speaks HTTP to the coordinator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/epyc-go/epyc/internal/design"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/lab"
	"github.com/epyc-go/epyc/internal/notebook"
)

// ErrTransient marks a poll/submit failure worth retrying (spec §7
// "Executor-internal errors during a remote poll are logged; the
// affected job may be retried up to Retries times").
var ErrTransient = errors.New("executor/remote: transient failure")

// Config configures an Executor's connection to the coordinator.
type Config struct {
	// BaseURL is the coordinator's HTTP address, e.g. "http://labd:8090".
	BaseURL string
	// Token authenticates this client as a lab (not a worker) against the
	// coordinator; sent as a bearer token.
	Token string
	// HTTPClient is the transport; defaults to http.DefaultClient.
	HTTPClient *http.Client
	// WaitingTime is the poll interval UpdateResults' caller sleeps
	// between calls (spec §5, default 30s). Remote only reads this to size
	// the poll rate limiter (PollBurst polls per WaitingTime); Lab.Wait
	// owns the main poll loop.
	WaitingTime time.Duration
	// Retries bounds per-job transient-failure retries (spec §4.7/§7).
	Retries int
	// Reconnections bounds reattachment attempts on open failure (spec §5).
	Reconnections int
	// PollBurst caps how many /jobs/{id} polls UpdateResults may issue
	// within one WaitingTime window before blocking, so a notebook with
	// many pending jobs doesn't hammer the coordinator with one GET per
	// job every tick (spec §4.7/§5's poll loop, throttled the way
	// internal/coordinator/middleware/ratelimit.go throttles inbound
	// submits). Defaults to 32.
	PollBurst int
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}

	if c.WaitingTime <= 0 {
		c.WaitingTime = lab.DefaultWaitingTime
	}

	if c.Retries <= 0 {
		c.Retries = 3
	}

	if c.Reconnections <= 0 {
		c.Reconnections = 3
	}

	if c.PollBurst <= 0 {
		c.PollBurst = 32
	}

	return c
}

// jobRecord is what Executor remembers locally about a job it submitted,
// so Reattach can reconcile the coordinator's view against its own (spec
// EXP-3 "Cluster reattachment probing").
type jobRecord struct {
	parameters experiment.Parameters
	attempts   int
}

// Executor is the Remote variant of spec §4.7: submitBatch assigns an
// opaque job id per point and returns immediately; UpdateResults (the
// lab.Poller capability) resolves whatever the coordinator reports done.
type Executor struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]*jobRecord

	limiter *rate.Limiter
}

var (
	_ lab.Executor  = (*Executor)(nil)
	_ lab.Poller    = (*Executor)(nil)
)

// New creates a remote Executor talking to cfg.BaseURL.
func New(cfg Config) *Executor {
	cfg = cfg.withDefaults()

	limit := rate.Limit(float64(cfg.PollBurst) / cfg.WaitingTime.Seconds())

	return &Executor{
		cfg:     cfg,
		pending: map[string]*jobRecord{},
		limiter: rate.NewLimiter(limit, cfg.PollBurst),
	}
}

// submitJob is one point in a /jobs submit request.
type submitJob struct {
	ExperimentClass string                `json:"experiment_class"`
	Parameters      experiment.Parameters `json:"parameters"`
}

type submitRequest struct {
	Jobs []submitJob `json:"jobs"`
}

type submitResponse struct {
	JobIDs []string `json:"job_ids"`
}

// SubmitBatch posts every point to the coordinator's /jobs endpoint in
// one request and returns a PendingSubmission per point (spec §4.7
// "submitBatch returns immediately, assigning an opaque job id per
// point").
func (e *Executor) SubmitBatch(ctx context.Context, points []design.Point) (lab.BatchResult, error) {
	if len(points) == 0 {
		return lab.BatchResult{}, nil
	}

	req := submitRequest{Jobs: make([]submitJob, len(points))}
	for i, pt := range points {
		req.Jobs[i] = submitJob{ExperimentClass: pt.Experiment.Class(), Parameters: pt.Parameters}
	}

	var resp submitResponse
	if err := e.post(ctx, "/jobs", req, &resp); err != nil {
		return lab.BatchResult{}, fmt.Errorf("executor/remote: submit batch: %w", err)
	}

	if len(resp.JobIDs) != len(points) {
		return lab.BatchResult{}, fmt.Errorf(
			"executor/remote: submit batch: coordinator returned %d job ids for %d points",
			len(resp.JobIDs), len(points))
	}

	pending := make([]lab.PendingSubmission, len(points))

	e.mu.Lock()
	for i, pt := range points {
		pending[i] = lab.PendingSubmission{JobID: resp.JobIDs[i], Parameters: pt.Parameters}
		e.pending[resp.JobIDs[i]] = &jobRecord{parameters: pt.Parameters}
	}
	e.mu.Unlock()

	return lab.BatchResult{Pending: pending}, nil
}

// pollStatus mirrors the coordinator's GET /jobs/{id} response (spec §4.7
// "poll(jobid) -> {pending, completed(record), failed(reason)}").
type pollStatus struct {
	State  string             `json:"state"` // "pending" | "completed" | "failed"
	Record *experiment.Record `json:"record,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

func (e *Executor) poll(ctx context.Context, jobID string) (pollStatus, error) {
	var status pollStatus
	if err := e.get(ctx, "/jobs/"+jobID, &status); err != nil {
		return pollStatus{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	return status, nil
}

func (e *Executor) cancel(ctx context.Context, jobIDs []string) {
	for _, jobID := range jobIDs {
		_ = e.post(ctx, "/jobs/"+jobID+"/cancel", struct{}{}, nil)
	}
}

// UpdateResults implements lab.Poller: it polls every job the notebook
// still has pending, resolving completions and retrying transient
// failures up to cfg.Retries before giving up. When purge is true, a job
// that has exhausted its retries is cancelled into the notebook as a
// Cancelled record instead of being left pending forever (spec §7
// "updateResults(purge=true) cancels it").
func (e *Executor) UpdateResults(ctx context.Context, nb *notebook.Notebook, purge bool) error {
	var crashed []string

	for _, jobID := range nb.PendingJobIDs() {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("executor/remote: poll rate limiter: %w", err)
		}

		status, err := e.poll(ctx, jobID)
		if err != nil {
			e.mu.Lock()
			rec, tracked := e.pending[jobID]
			if tracked {
				rec.attempts++
			}
			attempts := 0
			if tracked {
				attempts = rec.attempts
			}
			e.mu.Unlock()

			if attempts >= e.cfg.Retries {
				crashed = append(crashed, jobID)
			}

			continue
		}

		switch status.State {
		case "completed":
			if status.Record == nil {
				return fmt.Errorf("executor/remote: job %q reported completed with no record", jobID)
			}

			if err := nb.ResolvePendingResult(*status.Record, jobID); err != nil {
				return fmt.Errorf("executor/remote: resolve %q: %w", jobID, err)
			}

			e.mu.Lock()
			delete(e.pending, jobID)
			e.mu.Unlock()
		case "failed":
			crashed = append(crashed, jobID)
		case "pending":
			// nothing to do yet
		default:
			return fmt.Errorf("executor/remote: job %q: unknown state %q", jobID, status.State)
		}
	}

	if purge && len(crashed) > 0 {
		e.cancel(ctx, crashed)

		for _, jobID := range crashed {
			if _, err := nb.CancelPendingResult(jobID); err != nil {
				return fmt.Errorf("executor/remote: cancel %q: %w", jobID, err)
			}

			e.mu.Lock()
			delete(e.pending, jobID)
			e.mu.Unlock()
		}
	}

	return nil
}

func (e *Executor) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return e.do(req, out)
}

func (e *Executor) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	return e.do(req, out)
}

func (e *Executor) do(req *http.Request, out any) error {
	if e.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.Token)
	}

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
