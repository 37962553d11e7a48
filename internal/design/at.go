package design

import "github.com/epyc-go/epyc/internal/experiment"

// At runs an experiment at an explicit, fully-specified list of parameter
// points rather than a swept space — supplemented from
// original_source/epyc/standard_designs.py's pattern of re-running only
// the points that previously failed or were cancelled (spec EXP-3). The
// ranges argument is ignored: At's points are already complete.
type At struct {
	Points []experiment.Parameters
}

var _ Design = At{}

// Experiments returns one Point per entry in a.Points, in the given order.
func (a At) Experiments(e experiment.Experiment, _ Ranges) ([]Point, error) {
	out := make([]Point, len(a.Points))
	for i, p := range a.Points {
		out[i] = Point{Experiment: e, Parameters: p.Clone()}
	}

	return out, nil
}
