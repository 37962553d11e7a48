// Package notebook implements the named collection of result sets spec
// §4.4 describes: a current-tag selection, a cross-set pending index,
// locking, and a backend-agnostic persistence contract.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/resultset"
)

// DefaultTag is the tag of the result set every notebook is created with.
// It is never deletable (spec §3 invariant).
const DefaultTag = "default"

// Sentinel errors for the kinds spec §7 assigns to the notebook layer.
var (
	// ErrNotebookLocked is raised by any mutating call on a locked notebook.
	ErrNotebookLocked = errors.New("notebook: notebook is locked")
	// ErrResultSetNotFound is raised when a tag doesn't name a result set.
	ErrResultSetNotFound = errors.New("notebook: result set not found")
	// ErrResultSetExists is raised by addResultSet for a duplicate tag.
	ErrResultSetExists = errors.New("notebook: result set already exists")
	// ErrCannotDeleteDefault is raised when deleting the default tag.
	ErrCannotDeleteDefault = errors.New("notebook: cannot delete the default result set")
	// ErrCannotDeleteCurrent is raised when deleting the current tag.
	ErrCannotDeleteCurrent = errors.New("notebook: cannot delete the current result set")
	// ErrDuplicateJobID is raised by AddPendingResult for a job id already
	// indexed anywhere in the notebook.
	ErrDuplicateJobID = errors.New("notebook: job id already exists")
	// ErrPendingResultUnknown is raised by resolve/cancel for an unindexed id.
	ErrPendingResultUnknown = errors.New("notebook: unknown pending job id")
	// ErrNotebookVersion is raised by a persistent backend on container
	// version mismatch; carries expected/observed via *VersionError.
	ErrNotebookVersion = errors.New("notebook: version mismatch")
)

// VersionError wraps ErrNotebookVersion with the two versions involved.
type VersionError struct {
	Expected, Observed int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("notebook: version mismatch: expected %d, observed %d", e.Expected, e.Observed)
}

func (e *VersionError) Unwrap() error { return ErrNotebookVersion }

// PersistentBackend is the contract a concrete storage backend (e.g.
// internal/notebook/postgres) must satisfy (spec §4.4 "persistence
// contract"). Open reconstructs a Notebook's full state; Commit writes
// every dirty result set and the housekeeping block.
type PersistentBackend interface {
	// Open reconstructs notebook state: every result set (schema, records,
	// pending jobs, attributes, description, locked flag), the current
	// tag, notebook description, and notebook locked flag.
	Open(ctx context.Context) (*Snapshot, error)
	// Commit writes every dirty result set in full (schema first if
	// type-changed) followed by the housekeeping block. Must never
	// partially write a changed schema.
	Commit(ctx context.Context, snap *Snapshot) error
}

// Snapshot is the full on-the-wire state a PersistentBackend exchanges
// with a Notebook on Open/Commit.
type Snapshot struct {
	Description string
	Locked      bool
	CurrentTag  string
	Sets        []*SetSnapshot
	PendingSets map[string]string // job id -> tag, cross-set index
}

// SetSnapshot is one result set's full state for persistence purposes.
type SetSnapshot struct {
	Tag         string
	Description string
	Locked      bool
	Dirty       bool
	TypeChanged bool
	Attributes  map[string]string
	Rows        []resultset.Row
	PendingRows []PendingRowSnapshot
}

// PendingRowSnapshot is one pending-table row for persistence purposes.
type PendingRowSnapshot struct {
	JobID      string
	Parameters experiment.Parameters
}

// Notebook is the named collection of result sets described by spec §4.4.
type Notebook struct {
	mu sync.RWMutex

	description string
	locked      bool
	currentTag  string
	sets        map[string]*resultset.ResultSet
	order       []string          // insertion order of tags, for deterministic iteration
	pendingIdx  map[string]string // job id -> owning tag

	backend PersistentBackend
	clock   func() time.Time
}

// Option configures a Notebook at construction time.
type Option func(*Notebook)

// WithBackend attaches a PersistentBackend for Open/Commit.
func WithBackend(b PersistentBackend) Option {
	return func(n *Notebook) { n.backend = b }
}

// WithClock overrides the clock used for cancellation timestamps; tests
// use this to get deterministic output.
func WithClock(clock func() time.Time) Option {
	return func(n *Notebook) { n.clock = clock }
}

// New creates a Notebook with a single empty default result set, current.
func New(opts ...Option) *Notebook {
	n := &Notebook{
		sets:       map[string]*resultset.ResultSet{DefaultTag: resultset.New(DefaultTag)},
		order:      []string{DefaultTag},
		currentTag: DefaultTag,
		pendingIdx: map[string]string{},
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Open reconstructs a Notebook from its PersistentBackend (spec §4.4
// "on open"). Returns ErrResultSetNotFound-free state: a fresh
// Notebook{} is built entirely from the snapshot.
func Open(ctx context.Context, backend PersistentBackend) (*Notebook, error) {
	snap, err := backend.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("notebook: open: %w", err)
	}

	n := &Notebook{
		backend:     backend,
		description: snap.Description,
		locked:      snap.Locked,
		currentTag:  snap.CurrentTag,
		sets:        map[string]*resultset.ResultSet{},
		pendingIdx:  map[string]string{},
		clock:       time.Now,
	}

	for _, ss := range snap.Sets {
		rs := resultset.New(ss.Tag)

		for _, row := range ss.Rows {
			rec := experiment.Record{Parameters: row.Parameters, Metadata: row.Metadata, Results: row.Results}
			if err := rs.AddResult(rec); err != nil {
				return nil, fmt.Errorf("notebook: open: replaying set %q: %w", ss.Tag, err)
			}
		}

		for _, p := range ss.PendingRows {
			if err := rs.AddPending(p.JobID, p.Parameters); err != nil {
				return nil, fmt.Errorf("notebook: open: replaying pending %q: %w", ss.Tag, err)
			}

			n.pendingIdx[p.JobID] = ss.Tag
		}

		for k, v := range ss.Attributes {
			_ = rs.SetAttribute(k, v)
		}

		_ = rs.SetDescription(ss.Description)

		n.sets[ss.Tag] = rs
		n.order = append(n.order, ss.Tag)

		if ss.Locked {
			rs.Finish(experiment.String(""))
		}
	}

	if _, ok := n.sets[n.currentTag]; !ok {
		n.currentTag = DefaultTag
	}

	if _, ok := n.sets[DefaultTag]; !ok {
		n.sets[DefaultTag] = resultset.New(DefaultTag)
		n.order = append([]string{DefaultTag}, n.order...)
	}

	return n, nil
}

// Description returns the notebook's free-text description.
func (n *Notebook) Description() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.description
}

// Locked reports whether the notebook rejects addResultSet/deleteResultSet.
func (n *Notebook) Locked() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.locked
}

// CurrentTag returns the tag of the current result set.
func (n *Notebook) CurrentTag() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.currentTag
}

// Current returns the current result set.
func (n *Notebook) Current() *resultset.ResultSet {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.sets[n.currentTag]
}

// Tags returns every result-set tag in creation order.
func (n *Notebook) Tags() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, len(n.order))
	copy(out, n.order)

	return out
}

// Get returns the result set named tag, or ErrResultSetNotFound.
func (n *Notebook) Get(tag string) (*resultset.ResultSet, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	rs, ok := n.sets[tag]
	if !ok {
		return nil, ErrResultSetNotFound
	}

	return rs, nil
}

// AddResultSet creates an empty result set, makes it current, and returns
// it (spec §4.4). Fails if the notebook is locked or tag already exists.
func (n *Notebook) AddResultSet(tag, description string) (*resultset.ResultSet, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.locked {
		return nil, ErrNotebookLocked
	}

	if _, ok := n.sets[tag]; ok {
		return nil, ErrResultSetExists
	}

	rs := resultset.New(tag)
	_ = rs.SetDescription(description)

	n.sets[tag] = rs
	n.order = append(n.order, tag)
	n.currentTag = tag

	return rs, nil
}

// DeleteResultSet removes tag; rejects the default and current tags.
func (n *Notebook) DeleteResultSet(tag string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.locked {
		return ErrNotebookLocked
	}

	if tag == DefaultTag {
		return ErrCannotDeleteDefault
	}

	if tag == n.currentTag {
		return ErrCannotDeleteCurrent
	}

	if _, ok := n.sets[tag]; !ok {
		return ErrResultSetNotFound
	}

	delete(n.sets, tag)

	for i, t := range n.order {
		if t == tag {
			n.order = append(n.order[:i], n.order[i+1:]...)

			break
		}
	}

	for jobID, owner := range n.pendingIdx {
		if owner == tag {
			delete(n.pendingIdx, jobID)
		}
	}

	return nil
}

// Select changes the current tag.
func (n *Notebook) Select(tag string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.sets[tag]; !ok {
		return ErrResultSetNotFound
	}

	n.currentTag = tag

	return nil
}

// Already implements spec §4.4's already(tag, description): if tag exists,
// selects it and returns true; otherwise creates and selects it, returning
// false. Used by lab.Lab.CreateWith.
func (n *Notebook) Already(tag, description string) (bool, error) {
	n.mu.Lock()

	if _, ok := n.sets[tag]; ok {
		n.currentTag = tag
		n.mu.Unlock()

		return true, nil
	}

	n.mu.Unlock()

	if _, err := n.AddResultSet(tag, description); err != nil {
		return false, err
	}

	return false, nil
}

// AddResult implements spec §4.4's flattening insertion rule by delegating
// straight to the target set's AddResult, which already implements
// flattening (internal/resultset). tag empty means the current set.
func (n *Notebook) AddResult(rec experiment.Record, tag string) error {
	rs, err := n.targetSet(tag)
	if err != nil {
		return err
	}

	return rs.AddResult(rec)
}

func (n *Notebook) targetSet(tag string) (*resultset.ResultSet, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if tag == "" {
		tag = n.currentTag
	}

	rs, ok := n.sets[tag]
	if !ok {
		return nil, ErrResultSetNotFound
	}

	return rs, nil
}

// AddPendingResult adds a pending row to tag (or current) and indexes
// jobID notebook-wide (spec §4.4). jobID must be unique notebook-wide.
func (n *Notebook) AddPendingResult(params experiment.Parameters, jobID, tag string) error {
	n.mu.Lock()

	if tag == "" {
		tag = n.currentTag
	}

	if _, exists := n.pendingIdx[jobID]; exists {
		n.mu.Unlock()

		return ErrDuplicateJobID
	}

	rs, ok := n.sets[tag]
	if !ok {
		n.mu.Unlock()

		return ErrResultSetNotFound
	}

	n.mu.Unlock()

	if err := rs.AddPending(jobID, params); err != nil {
		return err
	}

	n.mu.Lock()
	n.pendingIdx[jobID] = tag
	n.mu.Unlock()

	return nil
}

// ResolvePendingResult locates jobID's owning set via the index, inserts
// rec there, and removes the pending row and index entry (spec §4.4).
func (n *Notebook) ResolvePendingResult(rec experiment.Record, jobID string) error {
	n.mu.Lock()
	tag, ok := n.pendingIdx[jobID]
	n.mu.Unlock()

	if !ok {
		return ErrPendingResultUnknown
	}

	rs, err := n.Get(tag)
	if err != nil {
		return err
	}

	if err := rs.ResolvePending(jobID, rec); err != nil {
		return err
	}

	n.mu.Lock()
	delete(n.pendingIdx, jobID)
	n.mu.Unlock()

	return nil
}

// CancelPendingResult synthesises a Cancelled record for jobID, inserts it
// into its owning set, and removes the pending row and index entry (spec
// §4.4/§5 "cancellation is never silent").
func (n *Notebook) CancelPendingResult(jobID string) (experiment.Record, error) {
	n.mu.Lock()
	tag, ok := n.pendingIdx[jobID]
	n.mu.Unlock()

	if !ok {
		return experiment.Record{}, ErrPendingResultUnknown
	}

	rs, err := n.Get(tag)
	if err != nil {
		return experiment.Record{}, err
	}

	rec, err := rs.CancelPending(jobID, experiment.Timestamp(n.clock()))
	if err != nil {
		return experiment.Record{}, err
	}

	n.mu.Lock()
	delete(n.pendingIdx, jobID)
	n.mu.Unlock()

	return rec, nil
}

// NumberOfAllPendingResults returns the notebook-wide pending count, used
// by the remote executor's wait loop (spec §4.7 "numberOfAllPendingResults").
func (n *Notebook) NumberOfAllPendingResults() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.pendingIdx)
}

// PendingJobIDs returns every job id the notebook currently has pending,
// across all result sets, used by a remote executor's UpdateResults loop
// to know which jobs to poll for.
func (n *Notebook) PendingJobIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.pendingIdx))
	for jobID := range n.pendingIdx {
		out = append(out, jobID)
	}

	return out
}

// Finish locks every set (cancelling all pending in each) and then sets
// the notebook's own locked flag (spec §4.4). If commit is true and a
// backend is attached, Commit is called afterward using a private path
// that writes regardless of lock state.
func (n *Notebook) Finish(ctx context.Context, commit bool) error {
	n.mu.Lock()

	tags := append([]string(nil), n.order...)
	now := experiment.Timestamp(n.clock())

	for _, tag := range tags {
		rs := n.sets[tag]
		if rs.Locked() {
			continue
		}

		rs.Finish(now)

		for jobID, owner := range n.pendingIdx {
			if owner == tag {
				delete(n.pendingIdx, jobID)
			}
		}
	}

	n.locked = true
	n.mu.Unlock()

	if commit && n.backend != nil {
		return n.Commit(ctx)
	}

	return nil
}

// Commit writes every dirty result set via the attached PersistentBackend
// (spec §4.4 "on commit"). A no-op, successfully, if no backend is
// attached. Per spec, a persistent notebook's commit succeeds regardless
// of the notebook's own lock state (the "private commit path").
func (n *Notebook) Commit(ctx context.Context) error {
	if n.backend == nil {
		return nil
	}

	n.mu.RLock()
	snap := n.snapshotLocked()
	n.mu.RUnlock()

	if err := n.backend.Commit(ctx, snap); err != nil {
		return fmt.Errorf("notebook: commit: %w", err)
	}

	n.mu.Lock()
	for _, tag := range n.order {
		n.sets[tag].ClearDirty()
	}
	n.mu.Unlock()

	return nil
}

func (n *Notebook) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Description: n.description,
		Locked:      n.locked,
		CurrentTag:  n.currentTag,
		PendingSets: make(map[string]string, len(n.pendingIdx)),
	}

	for jobID, tag := range n.pendingIdx {
		snap.PendingSets[jobID] = tag
	}

	for _, tag := range n.order {
		rs := n.sets[tag]

		ss := &SetSnapshot{
			Tag:         tag,
			Description: rs.Description(),
			Locked:      rs.Locked(),
			Dirty:       rs.Dirty(),
			TypeChanged: rs.TypeChanged(),
			Attributes:  map[string]string{},
			Rows:        rs.AllRows(),
		}

		for _, p := range rs.PendingEntries() {
			ss.PendingRows = append(ss.PendingRows, PendingRowSnapshot{JobID: p.JobID, Parameters: p.Parameters})
		}

		snap.Sets = append(snap.Sets, ss)
	}

	return snap
}

// NewJobID returns a fresh globally-unique job id, used by executors that
// don't generate their own (spec §3 "job ids: string").
func NewJobID() string {
	return uuid.NewString()
}
