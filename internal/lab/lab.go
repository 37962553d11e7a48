// Package lab implements the campaign-running façade spec §4.6 describes:
// a parameter-range space, a design that expands it, an executor that runs
// it, and a notebook that stores the outcome.
package lab

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/epyc-go/epyc/internal/design"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/notebook"
)

// PendingSubmission is one point an Executor accepted but could not
// resolve synchronously (spec §4.7 "remote... assigns an opaque job id
// per point").
type PendingSubmission struct {
	JobID      string
	Parameters experiment.Parameters
}

// BatchResult is what SubmitBatch returns: a synchronous executor
// (Sequential, Local-parallel) fills Records and leaves Pending empty; the
// remote executor does the opposite (spec §4.7).
type BatchResult struct {
	Records []experiment.Record
	Pending []PendingSubmission
}

// Executor is the capability set spec §4.7 names: {submitBatch, poll,
// cancel, wait}. Lab only ever needs SubmitBatch directly; poll/cancel/wait
// are concerns of the remote variant's own reattachment and resolution
// loop (internal/executor/remote), driven independently of a Lab.
type Executor interface {
	SubmitBatch(ctx context.Context, points []design.Point) (BatchResult, error)
}

// sequential is Lab's zero-value executor: it runs every point on the
// calling goroutine in order, matching original_source/epyc/lab.py's
// runExperiment before any executor abstraction existed. The fuller
// Sequential implementation in internal/executor adds nothing beyond
// this for the synchronous case, so Lab never imports that package.
type sequential struct{}

func (sequential) SubmitBatch(_ context.Context, points []design.Point) (BatchResult, error) {
	records := make([]experiment.Record, len(points))
	for i, pt := range points {
		records[i] = pt.Experiment.Set(pt.Parameters).Run()
	}

	return BatchResult{Records: records}, nil
}

// Lab is the parameterised campaign runner of spec §4.6. The zero value is
// not usable; construct with New.
type Lab struct {
	notebook    *notebook.Notebook
	design      design.Design
	executor    Executor
	ranges      design.Ranges
	waitingTime time.Duration
}

// DefaultWaitingTime is the remote executor's poll interval absent an
// override (spec §5).
const DefaultWaitingTime = 30 * time.Second

// Option configures a Lab at construction time.
type Option func(*Lab)

// WithNotebook attaches nb instead of a fresh in-memory default.
func WithNotebook(nb *notebook.Notebook) Option {
	return func(l *Lab) { l.notebook = nb }
}

// WithDesign overrides the default Factorial design.
func WithDesign(d design.Design) Option {
	return func(l *Lab) { l.design = d }
}

// WithExecutor overrides the default in-process sequential executor.
func WithExecutor(e Executor) Option {
	return func(l *Lab) { l.executor = e }
}

// WithWaitingTime overrides the poll interval Wait uses against a Poller
// executor (spec §5, default 30s).
func WithWaitingTime(d time.Duration) Option {
	return func(l *Lab) { l.waitingTime = d }
}

// New creates a Lab with a fresh default notebook, a Factorial design, and
// the in-process sequential executor, each overridable via Option.
func New(opts ...Option) *Lab {
	l := &Lab{
		notebook:    notebook.New(),
		design:      design.Factorial{},
		executor:    sequential{},
		waitingTime: DefaultWaitingTime,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Notebook returns the notebook this lab stores results in.
func (l *Lab) Notebook() *notebook.Notebook { return l.notebook }

// Design returns the experimental design this lab uses.
func (l *Lab) Design() design.Design { return l.design }

// Executor returns the executor this lab runs experiments on.
func (l *Lab) Executor() Executor { return l.executor }

// AddParameter adds or replaces the named parameter's range (spec §4.6
// "addParameter"). A single value is a length-1 range; Go's static typing
// already rules out the source's "string is a single value, not a
// sequence of characters" ambiguity.
func (l *Lab) AddParameter(name string, values ...experiment.Value) {
	cloned := append([]experiment.Value(nil), values...)

	for i, r := range l.ranges {
		if r.Name == name {
			l.ranges[i].Values = cloned

			return
		}
	}

	l.ranges = append(l.ranges, design.Range{Name: name, Values: cloned})
}

// DeleteParameter removes name from the parameter space; a no-op if it
// isn't present.
func (l *Lab) DeleteParameter(name string) {
	for i, r := range l.ranges {
		if r.Name == name {
			l.ranges = append(l.ranges[:i], l.ranges[i+1:]...)

			return
		}
	}
}

// DeleteAllParameters clears the parameter space.
func (l *Lab) DeleteAllParameters() {
	l.ranges = nil
}

// Parameters returns the parameter names currently in the space, in
// insertion order.
func (l *Lab) Parameters() []string {
	names := make([]string, len(l.ranges))
	for i, r := range l.ranges {
		names[i] = r.Name
	}

	return names
}

// Has reports whether name is a parameter of this lab (spec §4.6
// "__contains__").
func (l *Lab) Has(name string) bool {
	for _, r := range l.ranges {
		if r.Name == name {
			return true
		}
	}

	return false
}

// Get returns the named parameter's range and whether it exists.
func (l *Lab) Get(name string) ([]experiment.Value, bool) {
	for _, r := range l.ranges {
		if r.Name == name {
			return r.Values, true
		}
	}

	return nil, false
}

// Len is the total number of points the current design expands the
// parameter space to (spec §4.6 "__len__" := len(experiments(nil))).
func (l *Lab) Len() int {
	points, err := l.design.Experiments(nil, l.ranges)
	if err != nil {
		return 0
	}

	return len(points)
}

// Experiments returns the experimental configuration this lab's design
// produces for e over its current parameter ranges.
func (l *Lab) Experiments(e experiment.Experiment) ([]design.Point, error) {
	return l.design.Experiments(e, l.ranges)
}

// RunExperiment runs e over every point the design produces and stores
// the results, per spec §4.6's five-step algorithm. The notebook is
// committed whether the run succeeds or fails, as long as at least one
// point was submitted.
func (l *Lab) RunExperiment(ctx context.Context, e experiment.Experiment) (err error) {
	points, err := l.design.Experiments(e, l.ranges)
	if err != nil {
		return fmt.Errorf("lab: run experiment: %w", err)
	}

	if len(points) == 0 {
		return nil
	}

	defer func() {
		if cerr := l.notebook.Commit(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("lab: run experiment: commit: %w", cerr)
		}
	}()

	result, err := l.executor.SubmitBatch(ctx, points)
	if err != nil {
		return fmt.Errorf("lab: run experiment: submit batch: %w", err)
	}

	for _, rec := range result.Records {
		if err = l.notebook.AddResult(rec, ""); err != nil {
			return fmt.Errorf("lab: run experiment: add result: %w", err)
		}
	}

	for _, p := range result.Pending {
		if err = l.notebook.AddPendingResult(p.Parameters, p.JobID, ""); err != nil {
			return fmt.Errorf("lab: run experiment: add pending: %w", err)
		}
	}

	return nil
}

// createWithConfig holds CreateWith's defaults, each overridable by a
// CreateWithOption (spec §4.6 "createWith(tag, f, ...)").
type createWithConfig struct {
	description         string
	propagate           bool
	deleteOnError       bool
	finish              bool
	deleteAllParameters bool
}

// CreateWithOption configures one call to CreateWith.
type CreateWithOption func(*createWithConfig)

// WithDescription sets the description used if tag is newly created.
func WithDescription(d string) CreateWithOption {
	return func(c *createWithConfig) { c.description = d }
}

// WithoutPropagate swallows f's error instead of returning it.
func WithoutPropagate() CreateWithOption {
	return func(c *createWithConfig) { c.propagate = false }
}

// WithoutDeleteOnError keeps a partially-created set instead of deleting
// it when f fails.
func WithoutDeleteOnError() CreateWithOption {
	return func(c *createWithConfig) { c.deleteOnError = false }
}

// WithFinish locks the newly-created set after a successful f.
func WithFinish() CreateWithOption {
	return func(c *createWithConfig) { c.finish = true }
}

// WithoutDeleteAllParameters leaves the lab's current parameter ranges in
// place instead of clearing them before calling f.
func WithoutDeleteAllParameters() CreateWithOption {
	return func(c *createWithConfig) { c.deleteAllParameters = false }
}

// CreateWith is the conditional-campaign idiom of spec §4.6: select tag if
// it already exists; otherwise create it, run f to populate it, and
// revert on failure. Returns true if tag exists or was successfully
// created; false if f failed and its error was swallowed
// (WithoutPropagate).
func (l *Lab) CreateWith(tag string, f func(*Lab) error, opts ...CreateWithOption) (bool, error) {
	cfg := createWithConfig{propagate: true, deleteOnError: true, deleteAllParameters: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	nb := l.notebook
	currentTag := nb.CurrentTag()

	exists, err := nb.Already(tag, cfg.description)
	if err != nil {
		return false, fmt.Errorf("lab: create with %q: %w", tag, err)
	}

	if exists {
		return true, nil
	}

	if cfg.deleteAllParameters {
		l.DeleteAllParameters()
	}

	if ferr := f(l); ferr != nil {
		if cfg.deleteOnError {
			if serr := nb.Select(currentTag); serr != nil {
				_ = nb.Select(notebook.DefaultTag)
				slog.Warn("reverted to default result set, prior current set was deleted",
					slog.String("tag", currentTag))
			} else {
				slog.Info("reverted to prior result set after createWith error", slog.String("tag", currentTag))
			}

			_ = nb.DeleteResultSet(tag)
			slog.Info("deleted partly-created result set", slog.String("tag", tag))
		}

		if cfg.propagate {
			return false, ferr
		}

		slog.Error("createWith exception ignored", slog.String("tag", tag), slog.String("error", ferr.Error()))

		return false, nil
	}

	if cfg.finish {
		if rs, gerr := nb.Get(tag); gerr == nil {
			rs.Finish(experiment.Timestamp(time.Now()))
		}
	}

	return true, nil
}

// Poller is the optional capability a Executor may additionally satisfy:
// the remote variant's asynchronous job resolution (spec §4.7
// "updateResults"). Sequential and LocalParallel don't implement it,
// since they never leave a point unresolved — Wait/Ready detect this via
// a type assertion rather than a third required method on Executor
// itself (spec §9 "Executor polymorphism... remote is the only one
// introducing job ids and pending entries").
type Poller interface {
	// UpdateResults resolves whatever pending jobs the executor reports
	// as finished into nb, via nb.ResolvePendingResult. When purge is
	// true, jobs the executor has given up retrying are cancelled into nb
	// via nb.CancelPendingResult instead of being left pending forever.
	UpdateResults(ctx context.Context, nb *notebook.Notebook, purge bool) error
}

// Ready reports whether the notebook has no pending results left, after
// giving a Poller executor one chance to resolve whatever it can (spec
// §4.6 "ready").
func (l *Lab) Ready(ctx context.Context) (bool, error) {
	if p, ok := l.executor.(Poller); ok {
		if err := p.UpdateResults(ctx, l.notebook, false); err != nil {
			return false, fmt.Errorf("lab: ready: %w", err)
		}
	}

	return l.notebook.NumberOfAllPendingResults() == 0, nil
}

// ReadyFraction returns the fraction of points in play that are no
// longer pending, after the same update Ready performs. Returns 1.0 when
// no points have ever been submitted.
func (l *Lab) ReadyFraction(ctx context.Context) (float64, error) {
	if p, ok := l.executor.(Poller); ok {
		if err := p.UpdateResults(ctx, l.notebook, false); err != nil {
			return 0, fmt.Errorf("lab: ready fraction: %w", err)
		}
	}

	pending := l.notebook.NumberOfAllPendingResults()

	total := pending
	for _, tag := range l.notebook.Tags() {
		rs, err := l.notebook.Get(tag)
		if err != nil {
			continue
		}

		total += rs.NumberOfResults()
	}

	if total == 0 {
		return 1, nil
	}

	return float64(total-pending) / float64(total), nil
}

// Wait blocks until every submitted point has resolved or timeout
// elapses, per spec §5's timeout semantics: timeout<0 waits indefinitely,
// timeout==0 polls exactly once, timeout>0 returns true if everything
// resolved within that window. Precision is bounded below by the lab's
// WaitingTime. A non-Poller executor (Sequential, LocalParallel) never
// leaves anything pending, so Wait returns true immediately.
func (l *Lab) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	poller, ok := l.executor.(Poller)
	if !ok {
		return true, nil
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := poller.UpdateResults(ctx, l.notebook, false); err != nil {
			return false, fmt.Errorf("lab: wait: %w", err)
		}

		if l.notebook.NumberOfAllPendingResults() == 0 {
			return true, nil
		}

		if timeout == 0 {
			return false, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, nil
		}

		wait := l.waitingTime
		if wait <= 0 {
			wait = DefaultWaitingTime
		}

		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}
