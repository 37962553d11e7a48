// Package combinator provides Experiment wrappers that compose runs:
// Repeated runs the same point N times, Summary reduces a list of runs to
// statistics. Both forward Set/Parameters to the wrapped experiment, the
// same delegation shape internal/api/middleware/chain.go uses to wrap an
// http.Handler in an Option chain.
package combinator

import (
	"github.com/epyc-go/epyc/internal/experiment"
)

// base is shared plumbing for the two combinators: both delegate Set and
// Parameters straight to the wrapped experiment, and both override Do.
type base struct {
	experiment.Base

	inner  experiment.Experiment
	class  string
	logger experiment.Logger
}

// newBase constructs the shared embedded state. Callers must follow up
// with their own Base.Init(self, logger) once self (the outer pointer) is
// constructed, so Run dispatches to the outer type's overridden Do.
func newBase(class string, inner experiment.Experiment, logger experiment.Logger) base {
	return base{Base: experiment.NewBase(class), inner: inner, class: class, logger: logger}
}

// Set forwards to the wrapped experiment as well as binding the
// combinator's own point, so ExperimentalResults on either reflects the
// same run.
func (b *base) Set(point experiment.Parameters) experiment.Experiment {
	b.inner.Set(point)

	return b.Base.Set(point)
}

// Deconfigure forwards to the wrapped experiment.
func (b *base) Deconfigure() error {
	return b.inner.Deconfigure()
}

// Configure forwards to the wrapped experiment.
func (b *base) Configure(point experiment.Parameters) error {
	return b.inner.Configure(point)
}
