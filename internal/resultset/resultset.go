package resultset

import (
	"errors"
	"sync"

	"github.com/epyc-go/epyc/internal/experiment"
)

// Sentinel errors for the kinds named in spec §7 that originate from this
// package.
var (
	// ErrResultsStructure is raised when AddResult is given a Record whose
	// Nested records themselves carry Nested records: only one level of
	// nesting is flattened (spec §4.4 flattening rule).
	ErrResultsStructure = errors.New("resultset: unrecognised results structure")
	// ErrResultSetLocked is raised by any mutating call on a locked set.
	ErrResultSetLocked = errors.New("resultset: result set is locked")
	// ErrPendingResultUnknown is raised by resolve/cancel for an unknown job id.
	ErrPendingResultUnknown = errors.New("resultset: unknown pending job id")
)

// row is one stored record, already projected into the set's schema.
type row struct {
	metadata   map[string]experiment.Value
	parameters map[string]experiment.Value
	results    map[string]experiment.Value
}

// pendingRow is one row of the pending-job table: the union of parameter
// fields plus the reserved job_id column (spec §4.3).
type pendingRow struct {
	jobID      string
	parameters map[string]experiment.Value
}

// ResultSet is a named, typed, append-only table of records sharing one
// evolving schema, plus a pending table keyed by job id (spec §3/§4.3).
type ResultSet struct {
	mu sync.RWMutex

	tag         string
	description string
	attributes  map[string]string
	locked      bool
	dirty       bool
	typeChanged bool

	schema  *Schema
	rows    []row
	pending []pendingRow
}

// New creates an empty result set with the given tag.
func New(tag string) *ResultSet {
	return &ResultSet{
		tag:        tag,
		attributes: map[string]string{},
		schema:     newSchema(),
	}
}

// Tag returns the result set's tag.
func (rs *ResultSet) Tag() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.tag
}

// Description returns the free-text description.
func (rs *ResultSet) Description() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.description
}

// SetDescription sets the free-text description; rejected when locked.
func (rs *ResultSet) SetDescription(d string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return ErrResultSetLocked
	}

	rs.description = d
	rs.dirty = true

	return nil
}

// Attribute returns a user-set string attribute and whether it exists.
func (rs *ResultSet) Attribute(key string) (string, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	v, ok := rs.attributes[key]

	return v, ok
}

// SetAttribute sets a user-set string attribute; rejected when locked.
func (rs *ResultSet) SetAttribute(key, value string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return ErrResultSetLocked
	}

	rs.attributes[key] = value
	rs.dirty = true

	return nil
}

// DeleteAttribute removes a user-set string attribute; rejected when locked.
func (rs *ResultSet) DeleteAttribute(key string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return ErrResultSetLocked
	}

	delete(rs.attributes, key)
	rs.dirty = true

	return nil
}

// Locked reports whether the set currently rejects mutations.
func (rs *ResultSet) Locked() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.locked
}

// Dirty reports whether the set has unpersisted mutations.
func (rs *ResultSet) Dirty() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.dirty
}

// TypeChanged reports whether the schema grew since the last commit.
func (rs *ResultSet) TypeChanged() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.typeChanged
}

// ClearDirty is called by a persistence backend after a successful commit
// (spec §4.3 "a persistent backend clears these after a successful
// commit").
func (rs *ResultSet) ClearDirty() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.dirty = false
	rs.typeChanged = false
}

// Schema returns a detached copy of the current schema.
func (rs *ResultSet) Schema() *Schema {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.schema.Clone()
}

// NumberOfResults returns the row count.
func (rs *ResultSet) NumberOfResults() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return len(rs.rows)
}

// NumberOfPendingResults returns the pending-table row count.
func (rs *ResultSet) NumberOfPendingResults() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return len(rs.pending)
}

// AddResult applies the flattening rule of spec §4.4: a single Record
// inserts one row; a Record whose Nested holds already-formed records
// inserts each of them.
func (rs *ResultSet) AddResult(rec experiment.Record) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return ErrResultSetLocked
	}

	if len(rec.Nested) > 0 {
		for _, n := range rec.Nested {
			if len(n.Nested) > 0 {
				return ErrResultsStructure
			}

			rs.addSingleResultLocked(n)
		}

		return nil
	}

	rs.addSingleResultLocked(rec)

	return nil
}

// addSingleResultLocked implements spec §4.3's addSingleResult algorithm.
// Caller must hold rs.mu.
func (rs *ResultSet) addSingleResultLocked(rec experiment.Record) {
	meta := toValueMap(rec.Metadata)
	params := toValueMap(rec.Parameters)

	results := toValueMap(rec.Results)
	if !rec.Success() {
		results = map[string]experiment.Value{}
	}

	changed := rs.schema.extend(sectionMetadata, meta)
	changed = rs.schema.extend(sectionParameters, params) || changed
	changed = rs.schema.extend(sectionResults, results) || changed

	if changed {
		rs.typeChanged = true
		rs.backfillLocked()
	}

	rs.rows = append(rs.rows, row{
		metadata:   projectRow(rs.schema, sectionMetadata, meta),
		parameters: projectRow(rs.schema, sectionParameters, params),
		results:    projectRow(rs.schema, sectionResults, results),
	})

	rs.dirty = true
}

// backfillLocked back-fills every existing row with zero values for any
// schema field the row doesn't yet carry (spec §4.3 step 3).
func (rs *ResultSet) backfillLocked() {
	for i := range rs.rows {
		rs.rows[i].metadata = projectRow(rs.schema, sectionMetadata, rs.rows[i].metadata)
		rs.rows[i].parameters = projectRow(rs.schema, sectionParameters, rs.rows[i].parameters)
		rs.rows[i].results = projectRow(rs.schema, sectionResults, rs.rows[i].results)
	}

	for i := range rs.pending {
		rs.pending[i].parameters = projectRow(rs.schema, sectionParameters, rs.pending[i].parameters)
	}
}

// projectRow returns a copy of existing filled with the schema's zero
// value for every known field not already present.
func projectRow(schema *Schema, sec section, existing map[string]experiment.Value) map[string]experiment.Value {
	fields := *schema.fieldsFor(sec)
	out := make(map[string]experiment.Value, len(fields))

	for _, f := range fields {
		if v, ok := existing[f.name]; ok {
			out[f.name] = v
		} else {
			out[f.name] = f.kind.Zero()
		}
	}

	return out
}

func toValueMap[M ~map[string]experiment.Value](m M) map[string]experiment.Value {
	if m == nil {
		return map[string]experiment.Value{}
	}

	out := make(map[string]experiment.Value, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// Finish synthesises a cancellation record for every pending job and then
// locks the set (spec §4.3 "finish()"). Returns the cancellation records
// so a caller (Notebook) can fold them into its own bookkeeping.
func (rs *ResultSet) Finish(now experiment.Value) []experiment.Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	cancellations := make([]experiment.Record, 0, len(rs.pending))

	for _, p := range rs.pending {
		rec := cancellationRecord(p.parameters, now)
		cancellations = append(cancellations, rec)
		rs.addSingleResultLocked(rec)
	}

	rs.pending = nil
	rs.locked = true

	return cancellations
}

func cancellationRecord(params map[string]experiment.Value, now experiment.Value) experiment.Record {
	p := experiment.Parameters{}
	for k, v := range params {
		p[k] = v
	}

	return experiment.Record{
		Parameters: p,
		Metadata: experiment.Metadata{
			experiment.FieldStatus:    experiment.Bool(false),
			experiment.FieldException: experiment.String(experiment.ExceptionCancelled),
			experiment.FieldEndTime:   now,
		},
		Results: experiment.Results{},
	}
}
