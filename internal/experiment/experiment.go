package experiment

import (
	"fmt"
	"time"
)

// Phase is one state in the Experiment state machine (spec §4.1):
// Fresh → Configured → [SetUp → Done → TornDown] → Reported.
type Phase int

const (
	// PhaseFresh is the initial state, before set() binds a point.
	PhaseFresh Phase = iota
	// PhaseConfigured follows a successful set().
	PhaseConfigured
	// PhaseSetUp follows a successful setUp().
	PhaseSetUp
	// PhaseDone follows a successful do().
	PhaseDone
	// PhaseTornDown follows a successful tearDown().
	PhaseTornDown
	// PhaseReported is the terminal state, after run() assembles the record.
	PhaseReported
)

// String renders the Phase for logging.
func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhaseConfigured:
		return "configured"
	case PhaseSetUp:
		return "set-up"
	case PhaseDone:
		return "done"
	case PhaseTornDown:
		return "torn-down"
	case PhaseReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Outcome is what do() returned: either a single Results mapping or a list
// of already-formed records (the combinator case, spec §4.1).
type Outcome struct {
	Results Results
	Nested  []Record
}

// SingleOutcome wraps a plain Results mapping.
func SingleOutcome(r Results) Outcome { return Outcome{Results: r} }

// NestedOutcome wraps a list of fully-formed inner records.
func NestedOutcome(records []Record) Outcome { return Outcome{Nested: records} }

// Hooks are the overridable phases of an Experiment. Configure, SetUp and
// Do receive the bound Parameters point so implementations can mutate it
// in place during setup, matching spec §4.1's "set(point) may update the
// point".
type Hooks interface {
	// Configure runs once per Set, before any Run. The default Base
	// implementation is a no-op; override to validate or derive
	// parameters.
	Configure(point Parameters) error
	// Deconfigure reverses Configure. Called when Set replaces an
	// already-configured point.
	Deconfigure() error
	// SetUp prepares resources for one run. May mutate point.
	SetUp(point Parameters) error
	// Do runs the experiment itself and returns its outcome.
	Do(point Parameters) (Outcome, error)
	// TearDown releases resources acquired by SetUp.
	TearDown() error
}

// Experiment is the contract spec §4.1 defines: bind parameters, run the
// phases once, and report a single immutable Record.
type Experiment interface {
	Hooks

	// Set binds point, transitioning Fresh/Reported → Configured. Returns
	// the receiver so callers can chain e.Set(point).Run().
	Set(point Parameters) Experiment
	// Run executes setUp → do → tearDown and returns exactly one record;
	// exceptions from any phase are captured into metadata, never returned
	// as an error (spec §4.1 "exceptions never propagate from run()").
	Run() Record
	// Parameters returns a detached copy of the currently bound point.
	Parameters() Parameters
	// ExperimentalMetadata returns a detached copy of the last run's
	// metadata, nil before the first run.
	ExperimentalMetadata() Metadata
	// ExperimentalResults returns a detached copy of the last run's
	// results, nil before the first run.
	ExperimentalResults() Results
	// Success reports whether the last run succeeded.
	Success() bool
	// Failed reports whether the last run failed; the complement of
	// Success once a run has happened, false before any run.
	Failed() bool
	// Phase reports the current state-machine phase.
	Phase() Phase
	// Class returns the experiment_class name (spec §6), the identifier a
	// remote executor sends across the wire so a worker process can
	// reconstruct the right Experiment type via a Registry.
	Class() string
	// Clone returns a fresh, unconfigured Experiment of the same concrete
	// type, carrying the same construction-time configuration but none of
	// the previous instance's bound point/metadata/results. An executor
	// that fans a batch out across goroutines must call Clone once per
	// job rather than share one Experiment instance across workers: Base's
	// point/meta/result fields carry no synchronization, the same
	// per-job-instance discipline Registry.New gives the remote-worker
	// path.
	Clone() Experiment
}

// Logger is the subset of *slog.Logger Base needs for the warnings the
// spec requires never to fail an experiment (e.g. a swallowed teardown
// error after a failed do). Nil is valid; Base falls back to discarding.
type Logger interface {
	Warn(msg string, args ...any)
}

// Base is an embeddable Experiment implementation carrying the phase state
// machine and bookkeeping. Concrete experiments embed *Base and override
// Do (and optionally Configure/Deconfigure/SetUp/TearDown); call Init from
// the concrete constructor so Base can dispatch back through the
// overridden hooks rather than its own no-op defaults.
type Base struct {
	class  string
	self   Hooks
	logger Logger
	phase  Phase
	point  Parameters
	meta   Metadata
	result Results
}

// NewBase constructs a Base with the given class name, used to populate
// the experiment_class metadata field. Call Init once self is constructed.
func NewBase(class string) Base {
	return Base{class: class, phase: PhaseFresh}
}

// Init binds the concrete Experiment that embeds this Base, so Run
// dispatches to its overridden hooks. It must be called before Set/Run,
// typically from the embedder's constructor: `b.Init(self, logger)`.
func (b *Base) Init(self Hooks, logger Logger) {
	b.self = self
	b.logger = logger
}

// Configure is the default no-op hook.
func (b *Base) Configure(Parameters) error { return nil }

// Deconfigure is the default no-op hook.
func (b *Base) Deconfigure() error { return nil }

// SetUp is the default no-op hook.
func (b *Base) SetUp(Parameters) error { return nil }

// TearDown is the default no-op hook.
func (b *Base) TearDown() error { return nil }

// Do has no useful default; embedders must override it.
func (b *Base) Do(Parameters) (Outcome, error) {
	return Outcome{}, fmt.Errorf("experiment %q does not implement Do", b.class)
}

// Phase reports the current phase.
func (b *Base) Phase() Phase { return b.phase }

// Class returns the experiment_class name passed to NewBase.
func (b *Base) Class() string { return b.class }

// Parameters returns a detached copy of the bound point.
func (b *Base) Parameters() Parameters { return b.point.Clone() }

// ExperimentalMetadata returns a detached copy of the last run's metadata.
func (b *Base) ExperimentalMetadata() Metadata { return b.meta.Clone() }

// ExperimentalResults returns a detached copy of the last run's results.
func (b *Base) ExperimentalResults() Results { return b.result.Clone() }

// Success reports whether the last run succeeded.
func (b *Base) Success() bool {
	v, ok := b.meta[FieldStatus]

	return ok && v.Bool
}

// Failed is the complement of Success once a run has happened.
func (b *Base) Failed() bool {
	return b.phase == PhaseReported && !b.Success()
}

// hooks returns the dispatch target: the embedder if Init was called,
// otherwise b itself (so a bare Base{} still behaves, just with all
// no-op hooks).
func (b *Base) hooks() Hooks {
	if b.self != nil {
		return b.self
	}

	return b
}

// Set transitions Fresh/Reported → Configured, deconfiguring any
// previously-bound point first, and returns the embedding Experiment so
// callers can chain Set(point).Run(). A Base whose Init was not given an
// Experiment has no embedding Experiment to return and yields nil.
func (b *Base) Set(point Parameters) Experiment {
	b.set(point)

	exp, _ := b.hooks().(Experiment)

	return exp
}

// Run executes Fresh/Configured → Reported once and returns the record.
func (b *Base) Run() Record { return b.run() }

func (b *Base) set(point Parameters) {
	h := b.hooks()

	if b.phase != PhaseFresh {
		_ = h.Deconfigure()
	}

	b.point = point.Clone()
	b.phase = PhaseFresh

	if err := h.Configure(b.point); err != nil {
		b.meta = Metadata{FieldException: String(err.Error())}
	}

	b.phase = PhaseConfigured
}

// Run executes the phase state machine described in spec §4.1 against the
// hooks bound via Init, returning exactly one record.
func (b *Base) run() Record {
	h := b.hooks()
	start := time.Now()

	b.meta = Metadata{
		FieldExperimentClass: String(b.class),
		FieldStartTime:       Timestamp(start),
	}

	point := b.point.Clone()

	setupStart := time.Now()

	if err := h.SetUp(point); err != nil {
		b.point = point
		b.failAt(start, err)
		b.phase = PhaseReported

		return b.report()
	}

	b.point = point
	b.phase = PhaseSetUp
	setupElapsed := time.Since(setupStart).Seconds()

	doStart := time.Now()
	outcome, err := h.Do(point)

	if err != nil {
		if tdErr := h.TearDown(); tdErr != nil && b.logger != nil {
			b.logger.Warn("tearDown after failed do", "class", b.class, "error", tdErr)
		}

		b.meta[FieldSetupTime] = Float64(setupElapsed)
		b.meta[FieldExperimentTime] = Float64(time.Since(doStart).Seconds())
		b.failAt(start, err)
		b.phase = PhaseReported

		return b.report()
	}

	b.phase = PhaseDone
	doElapsed := time.Since(doStart).Seconds()

	teardownStart := time.Now()
	tdErr := h.TearDown()
	teardownElapsed := time.Since(teardownStart).Seconds()

	b.meta[FieldSetupTime] = Float64(setupElapsed)
	b.meta[FieldExperimentTime] = Float64(doElapsed)
	b.meta[FieldTeardownTime] = Float64(teardownElapsed)

	if tdErr != nil {
		b.failAt(start, tdErr)
		b.phase = PhaseReported

		return b.report()
	}

	b.phase = PhaseTornDown
	end := time.Now()
	b.meta[FieldEndTime] = Timestamp(end)
	b.meta[FieldElapsedTime] = Float64(setupElapsed + doElapsed + teardownElapsed)
	b.meta[FieldStatus] = Bool(true)
	b.meta[FieldException] = String("")
	b.meta[FieldTraceback] = String("")
	b.result = outcome.Results

	b.phase = PhaseReported
	rec := b.report()
	rec.Nested = outcome.Nested

	return rec
}

// failAt fills in the failure metadata common to setUp/do/tearDown
// exceptions (spec §4.1 failure semantics): status=false, exception and
// traceback set, end/elapsed recorded, results cleared.
func (b *Base) failAt(start time.Time, err error) {
	end := time.Now()
	b.meta[FieldEndTime] = Timestamp(end)
	b.meta[FieldElapsedTime] = Float64(end.Sub(start).Seconds())
	b.meta[FieldStatus] = Bool(false)
	b.meta[FieldException] = String(err.Error())
	b.meta[FieldTraceback] = String(fmt.Sprintf("%+v", err))
	b.result = Results{}
}

// report assembles the final Record from the accumulated state.
func (b *Base) report() Record {
	return Record{
		Parameters: b.point.Clone(),
		Metadata:   b.meta.Clone(),
		Results:    b.result.Clone(),
	}
}
