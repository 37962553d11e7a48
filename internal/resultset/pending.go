package resultset

import "github.com/epyc-go/epyc/internal/experiment"

// AddPending adds a pending job row, extending the pending table's schema
// with zero back-fill the same way the results table extends (spec §4.3).
// Caller (Notebook) is responsible for notebook-wide job id uniqueness.
func (rs *ResultSet) AddPending(jobID string, params experiment.Parameters) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return ErrResultSetLocked
	}

	pv := toValueMap(params)

	if rs.schema.extend(sectionParameters, pv) {
		rs.typeChanged = true
		rs.backfillLocked()
	}

	rs.pending = append(rs.pending, pendingRow{
		jobID:      jobID,
		parameters: projectRow(rs.schema, sectionParameters, pv),
	})
	rs.dirty = true

	return nil
}

// ResolvePending removes jobID's pending row and inserts rec as a real
// result (spec §4.4 resolvePendingResult). Returns ErrPendingResultUnknown
// if jobID isn't pending in this set.
func (rs *ResultSet) ResolvePending(jobID string, rec experiment.Record) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return ErrResultSetLocked
	}

	idx := rs.pendingIndexLocked(jobID)
	if idx < 0 {
		return ErrPendingResultUnknown
	}

	rs.pending = append(rs.pending[:idx], rs.pending[idx+1:]...)
	rs.addSingleResultLocked(rec)

	return nil
}

// CancelPending removes jobID's pending row and inserts a synthesised
// Cancelled record with the pending job's own parameters (spec §4.4
// cancelPendingResult). now is the current timestamp as a Value.
func (rs *ResultSet) CancelPending(jobID string, now experiment.Value) (experiment.Record, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.locked {
		return experiment.Record{}, ErrResultSetLocked
	}

	idx := rs.pendingIndexLocked(jobID)
	if idx < 0 {
		return experiment.Record{}, ErrPendingResultUnknown
	}

	params := rs.pending[idx].parameters
	rs.pending = append(rs.pending[:idx], rs.pending[idx+1:]...)

	rec := cancellationRecord(params, now)
	rs.addSingleResultLocked(rec)

	return rec, nil
}

// pendingIndexLocked finds jobID's index in rs.pending; caller holds rs.mu.
func (rs *ResultSet) pendingIndexLocked(jobID string) int {
	for i, p := range rs.pending {
		if p.jobID == jobID {
			return i
		}
	}

	return -1
}

// HasPending reports whether jobID is pending in this set.
func (rs *ResultSet) HasPending(jobID string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.pendingIndexLocked(jobID) >= 0
}

// PendingEntry is one detached pending-table row, for persistence and
// snapshot purposes.
type PendingEntry struct {
	JobID      string
	Parameters experiment.Parameters
}

// PendingEntries returns every pending row, detached, in insertion order.
func (rs *ResultSet) PendingEntries() []PendingEntry {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]PendingEntry, len(rs.pending))
	for i, p := range rs.pending {
		out[i] = PendingEntry{JobID: p.jobID, Parameters: experiment.Parameters(cloneValues(p.parameters))}
	}

	return out
}

// PendingJobIDs returns every pending job id in insertion order.
func (rs *ResultSet) PendingJobIDs() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]string, len(rs.pending))
	for i, p := range rs.pending {
		out[i] = p.jobID
	}

	return out
}
