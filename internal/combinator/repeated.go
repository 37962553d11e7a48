package combinator

import (
	"github.com/epyc-go/epyc/internal/experiment"
)

// Repeated wraps an experiment so do(point) invokes e.run() N times at the
// same point, returning the N inner records under Nested (spec §4.2). Each
// inner record receives repetitions=N and i=k (0-based). If the inner
// experiment's own result is itself a nested list (a combinator wrapping a
// combinator), Repeated flattens it before adding the i field.
type Repeated struct {
	base

	n int
}

// NewRepeated wraps inner so it runs n times per Set/Run. logger is used
// for warnings only; nil falls back to discarding them.
func NewRepeated(inner experiment.Experiment, n int, logger experiment.Logger) *Repeated {
	r := &Repeated{n: n}
	r.base = newBase("Repeated", inner, logger)
	r.Base.Init(r, logger)

	return r
}

// Do runs the wrapped experiment n times and returns the flattened,
// i-tagged records as a nested outcome.
func (r *Repeated) Do(point experiment.Parameters) (experiment.Outcome, error) {
	flat := make([]experiment.Record, 0, r.n)

	for k := 0; k < r.n; k++ {
		r.inner.Set(point.Clone())
		rec := r.inner.Run()
		flat = append(flat, flatten(rec)...)
	}

	for i := range flat {
		flat[i].Metadata = flat[i].Metadata.Clone()
		if flat[i].Metadata == nil {
			flat[i].Metadata = experiment.Metadata{}
		}

		flat[i].Metadata[experiment.FieldRepetitions] = experiment.Int64(int64(r.n))
		flat[i].Metadata[experiment.FieldRepetitionIndex] = experiment.Int64(int64(i))
	}

	return experiment.NestedOutcome(flat), nil
}

// Clone returns a fresh Repeated wrapping a fresh clone of the inner
// experiment, so a batch executor can hand out independent instances per
// job instead of sharing this one across goroutines.
func (r *Repeated) Clone() experiment.Experiment {
	return NewRepeated(r.inner.Clone(), r.n, r.logger)
}

// flatten expands a record whose Do returned a nested list (spec §4.1/§4.2
// "if the inner experiment itself returns a list, flatten recursively").
// A record with no Nested entries flattens to itself.
func flatten(rec experiment.Record) []experiment.Record {
	if len(rec.Nested) == 0 {
		rec.Nested = nil

		return []experiment.Record{rec}
	}

	out := make([]experiment.Record, 0, len(rec.Nested))

	for _, n := range rec.Nested {
		out = append(out, flatten(n)...)
	}

	return out
}
