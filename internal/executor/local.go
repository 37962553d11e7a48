package executor

import (
	"context"
	"runtime"
	"sync"

	"github.com/epyc-go/epyc/internal/design"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/lab"
)

// LocalParallel runs a batch across a fixed-size worker pool, synchronous
// to the caller (spec §4.7 "Local-parallel"). Records are returned in
// completion order, not submission order, which the spec explicitly
// allows for any executor other than Sequential.
type LocalParallel struct {
	// Workers sizes the pool: a positive value is capped at the physical
	// core count; zero uses every physical core; a negative value uses
	// max(1, cores+Workers).
	Workers int
}

var _ lab.Executor = LocalParallel{}

// workerCount resolves lp.Workers against runtime.NumCPU() per spec
// §4.7's sizing rule. runtime.NumCPU reports logical, not strictly
// physical, cores — the pack carries no library dedicated to physical-
// core detection (see DESIGN.md), so this is the idiomatic Go
// approximation.
func (lp LocalParallel) workerCount() int {
	cores := runtime.NumCPU()

	switch {
	case lp.Workers > 0:
		if lp.Workers > cores {
			return cores
		}

		return lp.Workers
	case lp.Workers == 0:
		return cores
	default:
		n := cores + lp.Workers
		if n < 1 {
			return 1
		}

		return n
	}
}

// SubmitBatch fans points out across the worker pool and drains
// completions as they arrive. On ctx cancellation it stops dispatching
// new points and returns whatever had already completed.
//
// Every Point in a batch from the same Design call shares one Experiment
// reference (design.Factorial, design.Pointwise, and design.At all hand
// every Point the identical instance), and Base's bound point/metadata/
// results carry no synchronization. Each worker therefore runs a Clone()'d
// copy of its job's experiment rather than the shared instance itself —
// the same per-job-instance discipline the original joblib-based executor
// got for free by pickling each task into its own process.
func (lp LocalParallel) SubmitBatch(ctx context.Context, points []design.Point) (lab.BatchResult, error) {
	if len(points) == 0 {
		return lab.BatchResult{}, nil
	}

	workers := lp.workerCount()
	if workers > len(points) {
		workers = len(points)
	}

	jobs := make(chan design.Point)
	completions := make(chan experiment.Record)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for pt := range jobs {
				completions <- pt.Experiment.Clone().Set(pt.Parameters).Run()
			}
		}()
	}

	go func() {
		defer close(jobs)

		for _, pt := range points {
			select {
			case jobs <- pt:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(completions)
	}()

	records := make([]experiment.Record, 0, len(points))
	for rec := range completions {
		records = append(records, rec)
	}

	if err := ctx.Err(); err != nil {
		return lab.BatchResult{Records: records}, err
	}

	return lab.BatchResult{Records: records}, nil
}
