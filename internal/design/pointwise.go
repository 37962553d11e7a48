package design

import (
	"fmt"

	"github.com/epyc-go/epyc/internal/experiment"
)

// Pointwise zips every range in lock-step (spec §4.5). All ranges must
// have equal length or length 1; length-1 ranges are broadcast across the
// other ranges' common length.
type Pointwise struct{}

var _ Design = Pointwise{}

// Experiments reproduces original_source/epyc/standard_designs.py's
// PointwiseDesign: find the one non-singleton length every range must
// agree on, broadcasting any length-1 range across it, and raise
// ErrDesign if more than one non-singleton length exists.
func (Pointwise) Experiments(e experiment.Experiment, ranges Ranges) ([]Point, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	length := -1

	for _, r := range ranges {
		n := len(r.Values)
		if n == 1 {
			continue
		}

		switch length {
		case -1:
			length = n
		default:
			if length != n {
				return nil, fmt.Errorf("%w: parameter range lengths don't match", ErrDesign)
			}
		}
	}

	if length == -1 {
		length = 1
	}

	out := make([]Point, length)

	for i := 0; i < length; i++ {
		params := make(experiment.Parameters, len(ranges))

		for _, r := range ranges {
			if len(r.Values) == 1 {
				params[r.Name] = r.Values[0]
				continue
			}

			if i >= len(r.Values) {
				return nil, fmt.Errorf("%w: parameter range lengths don't match", ErrDesign)
			}

			params[r.Name] = r.Values[i]
		}

		out[i] = Point{Experiment: e, Parameters: params}
	}

	return out, nil
}
