package executor

import (
	"context"
	"testing"

	"github.com/epyc-go/epyc/internal/design"
	"github.com/epyc-go/epyc/internal/experiment"
)

type sumExperiment struct {
	experiment.Base
}

func newSumExperiment() *sumExperiment {
	e := &sumExperiment{Base: experiment.NewBase("sum")}
	e.Base.Init(e, nil)

	return e
}

func (e *sumExperiment) Do(point experiment.Parameters) (experiment.Outcome, error) {
	return experiment.SingleOutcome(experiment.Results{
		"total": experiment.Int64(point["a"].Int + point["b"].Int),
	}), nil
}

func (e *sumExperiment) Clone() experiment.Experiment { return newSumExperiment() }

func points(n int) []design.Point {
	out := make([]design.Point, n)
	for i := range out {
		out[i] = design.Point{
			Experiment: newSumExperiment(),
			Parameters: experiment.Parameters{"a": experiment.Int64(int64(i)), "b": experiment.Int64(1)},
		}
	}

	return out
}

func TestSequential_RunsAllPointsInOrder(t *testing.T) {
	result, err := Sequential{}.SubmitBatch(context.Background(), points(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(result.Records))
	}

	for i, rec := range result.Records {
		want := int64(i) + 1
		if rec.Results["total"].Int != want {
			t.Errorf("record %d: expected total=%d, got %d", i, want, rec.Results["total"].Int)
		}
	}
}

func TestSequential_EmptyBatch(t *testing.T) {
	result, err := Sequential{}.SubmitBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(result.Records))
	}
}

func TestLocalParallel_RunsEveryPoint(t *testing.T) {
	lp := LocalParallel{Workers: 4}

	result, err := lp.SubmitBatch(context.Background(), points(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(result.Records))
	}

	totals := map[int64]int{}
	for _, rec := range result.Records {
		totals[rec.Results["total"].Int]++
	}

	for i := 0; i < 20; i++ {
		want := int64(i) + 1
		if totals[want] != 1 {
			t.Errorf("expected exactly one record with total=%d, got %d", want, totals[want])
		}
	}
}

// TestLocalParallel_SharedExperimentInstanceIsRaceSafe exercises the path
// every real Design produces: every Point in the batch carries the exact
// same Experiment reference (design.Factorial/Pointwise/At all hand every
// point the identical instance), not a freshly constructed one per point.
// Without a Clone per job, concurrent workers mutate the same Base's
// point/meta/result fields and corrupt each other's records.
func TestLocalParallel_SharedExperimentInstanceIsRaceSafe(t *testing.T) {
	shared := newSumExperiment()

	pts := make([]design.Point, 20)
	for i := range pts {
		pts[i] = design.Point{
			Experiment: shared,
			Parameters: experiment.Parameters{"a": experiment.Int64(int64(i)), "b": experiment.Int64(1)},
		}
	}

	lp := LocalParallel{Workers: 4}

	result, err := lp.SubmitBatch(context.Background(), pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(result.Records))
	}

	totals := map[int64]int{}
	for _, rec := range result.Records {
		totals[rec.Results["total"].Int]++
	}

	for i := 0; i < 20; i++ {
		want := int64(i) + 1
		if totals[want] != 1 {
			t.Errorf("expected exactly one record with total=%d from the shared-experiment path, got %d", want, totals[want])
		}
	}
}

func TestLocalParallel_WorkerCount(t *testing.T) {
	cores := LocalParallel{}.workerCount()
	if cores < 1 {
		t.Fatalf("expected at least 1 worker for zero value, got %d", cores)
	}

	if got := (LocalParallel{Workers: -1000}).workerCount(); got != 1 {
		t.Errorf("expected floor of 1 worker for a very negative value, got %d", got)
	}

	if got := (LocalParallel{Workers: 1}).workerCount(); got != 1 {
		t.Errorf("expected exactly 1 worker for Workers=1, got %d", got)
	}

	huge := LocalParallel{Workers: 1 << 20}.workerCount()
	if huge > cores {
		t.Errorf("expected worker count capped at physical cores (%d), got %d", cores, huge)
	}
}

func TestLocalParallel_EmptyBatch(t *testing.T) {
	result, err := LocalParallel{}.SubmitBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(result.Records))
	}
}
