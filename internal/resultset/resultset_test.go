package resultset

import (
	"testing"

	"github.com/epyc-go/epyc/internal/experiment"
)

func successRecord(a, total int64) experiment.Record {
	return experiment.Record{
		Parameters: experiment.Parameters{"a": experiment.Int64(a)},
		Metadata: experiment.Metadata{
			experiment.FieldStatus:    experiment.Bool(true),
			experiment.FieldException: experiment.String(""),
		},
		Results: experiment.Results{"total": experiment.Int64(total)},
	}
}

func TestAddResultInfersSchema(t *testing.T) {
	rs := New("default")

	if err := rs.AddResult(successRecord(1, 4)); err != nil {
		t.Fatalf("AddResult() unexpected error: %v", err)
	}

	if got := rs.NumberOfResults(); got != 1 {
		t.Errorf("NumberOfResults() = %d, want 1", got)
	}

	schema := rs.Schema()
	if got := schema.ParameterFields(); len(got) != 1 || got[0] != "a" {
		t.Errorf("ParameterFields() = %v, want [a]", got)
	}

	if got := schema.ResultFields(); len(got) != 1 || got[0] != "total" {
		t.Errorf("ResultFields() = %v, want [total]", got)
	}
}

func TestAddResultBackfillsNewFields(t *testing.T) {
	rs := New("default")

	first := successRecord(1, 4)
	if err := rs.AddResult(first); err != nil {
		t.Fatalf("AddResult() unexpected error: %v", err)
	}

	second := successRecord(2, 5)
	second.Results["extra"] = experiment.Float64(1.5)

	if err := rs.AddResult(second); err != nil {
		t.Fatalf("AddResult() unexpected error: %v", err)
	}

	rows := rs.AllRows()
	if len(rows) != 2 {
		t.Fatalf("AllRows() len = %d, want 2", len(rows))
	}

	if rows[0].Results["extra"].Kind != experiment.KindFloat64 || rows[0].Results["extra"].Float != 0 {
		t.Errorf("back-filled extra field = %#v, want zero float64", rows[0].Results["extra"])
	}
}

func TestAddResultFailedRecordZeroesResults(t *testing.T) {
	rs := New("default")

	rec := experiment.Record{
		Parameters: experiment.Parameters{"a": experiment.Int64(1)},
		Metadata: experiment.Metadata{
			experiment.FieldStatus:    experiment.Bool(false),
			experiment.FieldException: experiment.String("boom"),
		},
		Results: experiment.Results{"total": experiment.Int64(99)},
	}

	if err := rs.AddResult(rec); err != nil {
		t.Fatalf("AddResult() unexpected error: %v", err)
	}

	if got := rs.Schema().ResultFields(); len(got) != 0 {
		t.Errorf("ResultFields() = %v, want empty for a first failed record", got)
	}
}

func TestAddResultFlattensNestedRecords(t *testing.T) {
	rs := New("default")

	rec := experiment.Record{
		Nested: []experiment.Record{
			successRecord(1, 4),
			successRecord(2, 5),
		},
	}

	if err := rs.AddResult(rec); err != nil {
		t.Fatalf("AddResult() unexpected error: %v", err)
	}

	if got := rs.NumberOfResults(); got != 2 {
		t.Errorf("NumberOfResults() = %d, want 2", got)
	}
}

func TestAddResultRejectsMutationWhenLocked(t *testing.T) {
	rs := New("default")
	rs.Finish(experiment.String("now"))

	if err := rs.AddResult(successRecord(1, 4)); err != ErrResultSetLocked {
		t.Errorf("AddResult() on locked set = %v, want ErrResultSetLocked", err)
	}
}

func TestPendingLifecycle(t *testing.T) {
	rs := New("default")

	params := experiment.Parameters{"a": experiment.Int64(3)}
	if err := rs.AddPending("job-1", params); err != nil {
		t.Fatalf("AddPending() unexpected error: %v", err)
	}

	if !rs.HasPending("job-1") {
		t.Fatalf("HasPending(job-1) = false, want true")
	}

	if err := rs.ResolvePending("job-1", successRecord(3, 7)); err != nil {
		t.Fatalf("ResolvePending() unexpected error: %v", err)
	}

	if rs.HasPending("job-1") {
		t.Errorf("HasPending(job-1) after resolve = true, want false")
	}

	if err := rs.ResolvePending("job-1", successRecord(3, 7)); err != ErrPendingResultUnknown {
		t.Errorf("ResolvePending() on resolved id = %v, want ErrPendingResultUnknown", err)
	}
}

func TestFinishCancelsPendingAndLocks(t *testing.T) {
	rs := New("default")

	_ = rs.AddPending("job-1", experiment.Parameters{"a": experiment.Int64(1)})
	_ = rs.AddPending("job-2", experiment.Parameters{"a": experiment.Int64(2)})

	cancelled := rs.Finish(experiment.String("now"))

	if len(cancelled) != 2 {
		t.Fatalf("Finish() cancelled %d records, want 2", len(cancelled))
	}

	if rs.NumberOfPendingResults() != 0 {
		t.Errorf("NumberOfPendingResults() after Finish = %d, want 0", rs.NumberOfPendingResults())
	}

	if !rs.Locked() {
		t.Errorf("Locked() after Finish = false, want true")
	}

	for _, rec := range cancelled {
		if rec.Exception() != experiment.ExceptionCancelled {
			t.Errorf("cancelled record exception = %q, want %q", rec.Exception(), experiment.ExceptionCancelled)
		}
	}
}

func TestDataframeForFiltersAndDisjunction(t *testing.T) {
	rs := New("default")

	for _, a := range []int64{1, 2, 3} {
		_ = rs.AddResult(successRecord(a, a+3))
	}

	one := rs.DataframeFor(experiment.Parameters{"a": experiment.Int64(1)}, false)
	if len(one) != 1 {
		t.Fatalf("DataframeFor(a=1) len = %d, want 1", len(one))
	}

	disjunction := rs.DataframeFor(experiment.Parameters{
		"a": experiment.Sequence(experiment.Int64(1), experiment.Int64(3)),
	}, false)
	if len(disjunction) != 2 {
		t.Fatalf("DataframeFor(a in [1,3]) len = %d, want 2", len(disjunction))
	}

	all := rs.DataframeFor(experiment.Parameters{}, false)
	if len(all) != 3 {
		t.Fatalf("DataframeFor(empty) len = %d, want 3", len(all))
	}
}
