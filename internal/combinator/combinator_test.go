package combinator_test

import (
	"testing"

	"github.com/epyc-go/epyc/internal/combinator"
	"github.com/epyc-go/epyc/internal/experiment"
)

type counterExperiment struct {
	experiment.Base

	calls int
	fail  bool
}

func newCounterExperiment(fail bool) *counterExperiment {
	e := &counterExperiment{fail: fail}
	e.Base = experiment.NewBase("counter")
	e.Base.Init(e, nil)

	return e
}

func (e *counterExperiment) Do(point experiment.Parameters) (experiment.Outcome, error) {
	e.calls++

	if e.fail {
		return experiment.Outcome{}, errCounterFailed
	}

	return experiment.SingleOutcome(experiment.Results{"x": experiment.Int64(int64(e.calls))}), nil
}

func (e *counterExperiment) Clone() experiment.Experiment { return newCounterExperiment(e.fail) }

var errCounterFailed = errCounter("counter: intentional failure")

type errCounter string

func (e errCounter) Error() string { return string(e) }

func TestRepeated_RunsNTimesAndTagsRepetitions(t *testing.T) {
	inner := newCounterExperiment(false)
	repeated := combinator.NewRepeated(inner, 3, nil)

	record := repeated.Set(experiment.Parameters{}).Run()

	if len(record.Nested) != 3 {
		t.Fatalf("expected 3 nested records, got %d", len(record.Nested))
	}

	for i, rec := range record.Nested {
		if rec.Metadata[experiment.FieldRepetitions].Int != 3 {
			t.Fatalf("record %d: expected repetitions=3, got %+v", i, rec.Metadata[experiment.FieldRepetitions])
		}

		if rec.Metadata[experiment.FieldRepetitionIndex].Int != int64(i) {
			t.Fatalf("record %d: expected i=%d, got %+v", i, i, rec.Metadata[experiment.FieldRepetitionIndex])
		}
	}
}

func TestRepeated_FlattensNestedInnerResult(t *testing.T) {
	inner := combinator.NewRepeated(newCounterExperiment(false), 2, nil)
	outer := combinator.NewRepeated(inner, 2, nil)

	record := outer.Set(experiment.Parameters{}).Run()

	if len(record.Nested) != 4 {
		t.Fatalf("expected 4 flattened records (2x2), got %d", len(record.Nested))
	}

	for _, rec := range record.Nested {
		if len(rec.Nested) != 0 {
			t.Fatalf("expected fully flattened records, found nested: %+v", rec)
		}
	}
}

func TestSummary_ReducesNumericFields(t *testing.T) {
	repeated := combinator.NewRepeated(newCounterExperiment(false), 5, nil)
	summary := combinator.NewSummary(repeated, nil, nil)

	record := summary.Set(experiment.Parameters{}).Run()

	if !record.Success() {
		t.Fatalf("expected summary to succeed, got %+v", record.Metadata)
	}

	if _, ok := record.Results["x_mean"]; !ok {
		t.Fatalf("expected x_mean in results, got %+v", record.Results)
	}

	if record.Results["x_min"].Float != 1 {
		t.Fatalf("expected x_min=1, got %v", record.Results["x_min"])
	}

	if record.Results["x_max"].Float != 5 {
		t.Fatalf("expected x_max=5, got %v", record.Results["x_max"])
	}

	if record.Metadata[experiment.FieldRepetitions].Int != 5 {
		t.Fatalf("expected repetitions=5, got %v", record.Metadata[experiment.FieldRepetitions])
	}

	if record.Metadata[experiment.FieldSuccessfulReps].Int != 5 {
		t.Fatalf("expected successful_repetitions=5, got %v", record.Metadata[experiment.FieldSuccessfulReps])
	}
}

func TestSummary_SkipsFailedRunsWhenCountingSuccessful(t *testing.T) {
	repeated := combinator.NewRepeated(newCounterExperiment(true), 3, nil)
	summary := combinator.NewSummary(repeated, nil, nil)

	record := summary.Set(experiment.Parameters{}).Run()

	if record.Metadata[experiment.FieldRepetitions].Int != 3 {
		t.Fatalf("expected repetitions=3, got %v", record.Metadata[experiment.FieldRepetitions])
	}

	if record.Metadata[experiment.FieldSuccessfulReps].Int != 0 {
		t.Fatalf("expected successful_repetitions=0, got %v", record.Metadata[experiment.FieldSuccessfulReps])
	}

	if _, ok := record.Results["x_mean"]; ok {
		t.Fatalf("expected no x_mean when every run failed, got %+v", record.Results)
	}
}

func TestSummary_RestrictsToRequestedFields(t *testing.T) {
	inner := newCounterExperiment(false)
	repeated := combinator.NewRepeated(inner, 2, nil)
	summary := combinator.NewSummary(repeated, []string{"does_not_exist"}, nil)

	record := summary.Set(experiment.Parameters{}).Run()

	if len(record.Results) != 0 {
		t.Fatalf("expected no reduced fields for an unmatched allowlist, got %+v", record.Results)
	}
}
