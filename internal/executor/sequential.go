// Package executor implements the in-process Executor variants spec §4.7
// names: Sequential (calling-goroutine, in order) and Local-parallel (a
// fixed-size worker pool). The remote variant lives in
// internal/executor/remote, since it needs its own wire types and an
// HTTP client the in-process variants have no use for.
package executor

import (
	"context"

	"github.com/epyc-go/epyc/internal/design"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/lab"
)

// Sequential runs every point on the calling goroutine, in submission
// order, with no pending state (spec §4.7). It is the same loop
// internal/lab's own zero-value executor runs; this exported type exists
// so a Lab can be built with it explicitly via lab.WithExecutor.
type Sequential struct{}

var _ lab.Executor = Sequential{}

// SubmitBatch runs every point in order, returning as soon as ctx is
// cancelled with whatever records completed so far.
func (Sequential) SubmitBatch(ctx context.Context, points []design.Point) (lab.BatchResult, error) {
	records := make([]experiment.Record, 0, len(points))

	for _, pt := range points {
		select {
		case <-ctx.Done():
			return lab.BatchResult{Records: records}, ctx.Err()
		default:
		}

		records = append(records, pt.Experiment.Set(pt.Parameters).Run())
	}

	return lab.BatchResult{Records: records}, nil
}
