package resultset

import "github.com/epyc-go/epyc/internal/experiment"

// Row is a detached, caller-visible projection of one stored record: the
// three sections plus the schema-assigned parameter values (spec §4.3
// "all accessors return detached copies").
type Row struct {
	Metadata   experiment.Metadata
	Parameters experiment.Parameters
	Results    experiment.Results
}

// matches reports whether a row's parameter values satisfy a filter, per
// spec §4.3: a provided value that is itself a list (Value.Sequence) is a
// disjunction (row matches if the field is one of the list's values);
// missing keys in the filter are unconstrained; an empty filter matches
// every row.
func matches(params map[string]experiment.Value, filter experiment.Parameters) bool {
	for key, want := range filter {
		got, ok := params[key]
		if !ok {
			return false
		}

		if want.Kind == experiment.KindSequence {
			found := false

			for _, alt := range want.Elems {
				if valueEqual(got, alt) {
					found = true

					break
				}
			}

			if !found {
				return false
			}

			continue
		}

		if !valueEqual(got, want) {
			return false
		}
	}

	return true
}

func valueEqual(a, b experiment.Value) bool {
	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case experiment.KindInt64:
		return a.Int == b.Int
	case experiment.KindFloat64:
		return a.Float == b.Float
	case experiment.KindComplex128:
		return a.Complex == b.Complex
	case experiment.KindBool:
		return a.Bool == b.Bool
	case experiment.KindString:
		return a.Str == b.Str
	case experiment.KindSequence:
		if len(a.Elems) != len(b.Elems) {
			return false
		}

		for i := range a.Elems {
			if !valueEqual(a.Elems[i], b.Elems[i]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// DataframeFor filters rows where every provided parameter matches (spec
// §4.3 dataframeFor). onlySuccessful restricts to status=true rows.
func (rs *ResultSet) DataframeFor(params experiment.Parameters, onlySuccessful bool) []Row {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]Row, 0, len(rs.rows))

	for _, r := range rs.rows {
		if !matches(r.parameters, params) {
			continue
		}

		if onlySuccessful {
			if status, ok := r.metadata[experiment.FieldStatus]; !ok || !status.Bool {
				continue
			}
		}

		out = append(out, rowToDetached(r))
	}

	return out
}

// PendingResultsFor returns the job ids of pending rows whose parameters
// match filter (spec §4.3 pendingResultsFor).
func (rs *ResultSet) PendingResultsFor(filter experiment.Parameters) []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]string, 0, len(rs.pending))

	for _, p := range rs.pending {
		if matches(p.parameters, filter) {
			out = append(out, p.jobID)
		}
	}

	return out
}

// ResultsFor returns records reconstituted from matching rows using the
// current schema (spec §4.3 resultsFor).
func (rs *ResultSet) ResultsFor(filter experiment.Parameters) []experiment.Record {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]experiment.Record, 0, len(rs.rows))

	for _, r := range rs.rows {
		if !matches(r.parameters, filter) {
			continue
		}

		out = append(out, experiment.Record{
			Parameters: experiment.Parameters(cloneValues(r.parameters)),
			Metadata:   experiment.Metadata(cloneValues(r.metadata)),
			Results:    experiment.Results(cloneValues(r.results)),
		})
	}

	return out
}

func rowToDetached(r row) Row {
	return Row{
		Metadata:   experiment.Metadata(cloneValues(r.metadata)),
		Parameters: experiment.Parameters(cloneValues(r.parameters)),
		Results:    experiment.Results(cloneValues(r.results)),
	}
}

func cloneValues(m map[string]experiment.Value) map[string]experiment.Value {
	out := make(map[string]experiment.Value, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// AllRows returns every row in insertion order, detached (spec §4.3
// ordering: "iteration order of records is insertion order").
func (rs *ResultSet) AllRows() []Row {
	return rs.DataframeFor(experiment.Parameters{}, false)
}
