// Package design implements the three experimental designs spec §4.5
// describes: Factorial (cartesian product, randomised order), Pointwise
// (lock-step zip with length-1 broadcast), and At (explicit point list,
// supplemented from original_source/epyc/standard_designs.py's "rerun
// exactly these points" idiom).
package design

import (
	"errors"

	"github.com/epyc-go/epyc/internal/experiment"
)

// ErrDesign is the sentinel for the "Design" error kind spec §7 names,
// raised when a design's input ranges can't be reconciled into a space
// (e.g. Pointwise's mismatched lengths).
var ErrDesign = errors.New("design: cannot form experimental configuration")

// Range is one named parameter's ordered list of candidate values.
// Singleton (scalar) parameters are length-1 Ranges; strings are always
// length-1 even though they're iterable (spec §4.5).
type Range struct {
	Name   string
	Values []experiment.Value
}

// Ranges is the ordered parameter-range mapping a Design expands. Order
// matters only for Factorial's dimension-build order and for error
// messages; the resulting points are unordered maps regardless.
type Ranges []Range

// Point pairs an Experiment with one fully-specified parameter point (spec
// §3 "(Experiment, point)").
type Point struct {
	Experiment experiment.Experiment
	Parameters experiment.Parameters
}

// Design is a pure function from an experiment and parameter ranges to an
// ordered list of experimental configuration points (spec §4.5).
type Design interface {
	Experiments(e experiment.Experiment, ranges Ranges) ([]Point, error)
}
