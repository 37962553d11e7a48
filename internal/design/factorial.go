package design

import (
	"math/rand"

	"github.com/epyc-go/epyc/internal/experiment"
)

// Factorial forms the cartesian product of every range (spec §4.5). A
// range of length 0 is skipped rather than collapsing the whole design to
// empty; the resulting order is randomised to balance heterogeneous
// experiment runtimes across whatever executes the space.
type Factorial struct{}

var _ Design = Factorial{}

// Experiments builds the cross-product point-by-point the way
// original_source/epyc/standard_designs.py's FactorialDesign does: each
// range folds into the accumulated point list by copying every existing
// point once per candidate value, then the whole list is shuffled.
func (Factorial) Experiments(e experiment.Experiment, ranges Ranges) ([]Point, error) {
	var points []experiment.Parameters

	for _, r := range ranges {
		if len(r.Values) == 0 {
			continue
		}

		var next []experiment.Parameters

		for _, v := range r.Values {
			if len(points) > 0 {
				for _, p := range points {
					np := p.Clone()
					np[r.Name] = v
					next = append(next, np)
				}
			} else {
				next = append(next, experiment.Parameters{r.Name: v})
			}
		}

		if len(next) > 0 {
			points = next
		}
	}

	rand.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })

	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{Experiment: e, Parameters: p}
	}

	return out, nil
}
