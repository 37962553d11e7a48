package combinator

import (
	"sort"

	"github.com/epyc-go/epyc/internal/experiment"
)

// Summary wraps an experiment (typically a Repeated) and reduces a list of
// runs to five-number statistics per numeric field (spec §4.2). Non-
// numeric fields are skipped with a warning; this never fails the summary.
// The summary's own success is independent of inner failures: Do never
// returns an error, so the surrounding phase machine always reports
// success=true for the Summary itself.
type Summary struct {
	base

	fields []string // restrict reduction to these result fields; nil = all numeric fields
	logger experiment.Logger

	lastTotal      int
	lastSuccessful int
}

// NewSummary wraps inner, reducing do()'s output (a single run, whose
// Nested list is the typical case when inner is a Repeated) to summary
// statistics. fields restricts which result fields are reduced; pass nil
// to reduce every numeric field observed.
func NewSummary(inner experiment.Experiment, fields []string, logger experiment.Logger) *Summary {
	s := &Summary{fields: fields, logger: logger}
	s.base = newBase("Summary", inner, logger)
	s.Base.Init(s, logger)

	return s
}

// Do runs the wrapped experiment once, filters its (possibly nested)
// output to successful records, and emits <field>_mean/_median/_variance/
// _min/_max for each qualifying numeric field.
func (s *Summary) Do(point experiment.Parameters) (experiment.Outcome, error) {
	s.inner.Set(point.Clone())
	rec := s.inner.Run()

	records := flatten(rec)
	s.lastTotal = len(records)

	successful := make([]experiment.Record, 0, len(records))

	for _, r := range records {
		if r.Success() {
			successful = append(successful, r)
		}
	}

	s.lastSuccessful = len(successful)

	columns := collectNumericColumns(successful, s.fields)
	warnSkippedFields(successful, s.fields, columns, s.logger)

	results := experiment.Results{}

	for _, name := range sortedKeys(columns) {
		vals := columns[name]
		if len(vals) == 0 {
			continue
		}

		mean, median, variance, min, max := fiveNumber(vals)
		results[name+"_mean"] = experiment.Float64(mean)
		results[name+"_median"] = experiment.Float64(median)
		results[name+"_variance"] = experiment.Float64(variance)
		results[name+"_min"] = experiment.Float64(min)
		results[name+"_max"] = experiment.Float64(max)
	}

	return experiment.SingleOutcome(results), nil
}

// Run executes the phase machine and then adds the repetitions/
// successful_repetitions metadata Do's most recent call computed, since
// the base state machine has no post-Do metadata hook.
func (s *Summary) Run() experiment.Record {
	rec := s.Base.Run()

	if rec.Metadata == nil {
		rec.Metadata = experiment.Metadata{}
	}

	rec.Metadata[experiment.FieldRepetitions] = experiment.Int64(int64(s.lastTotal))
	rec.Metadata[experiment.FieldSuccessfulReps] = experiment.Int64(int64(s.lastSuccessful))

	return rec
}

// Clone returns a fresh Summary wrapping a fresh clone of the inner
// experiment, restricted to the same fields, so a batch executor can hand
// out independent instances per job instead of sharing this one across
// goroutines.
func (s *Summary) Clone() experiment.Experiment {
	return NewSummary(s.inner.Clone(), s.fields, s.logger)
}

func collectNumericColumns(records []experiment.Record, only []string) map[string][]float64 {
	allowed := func(string) bool { return true }

	if only != nil {
		set := make(map[string]struct{}, len(only))
		for _, f := range only {
			set[f] = struct{}{}
		}

		allowed = func(name string) bool {
			_, ok := set[name]

			return ok
		}
	}

	columns := map[string][]float64{}

	for _, r := range records {
		for name, v := range r.Results {
			if !allowed(name) || !v.IsNumeric() {
				continue
			}

			columns[name] = append(columns[name], v.AsFloat())
		}
	}

	return columns
}

func warnSkippedFields(
	records []experiment.Record,
	only []string,
	numeric map[string][]float64,
	logger experiment.Logger,
) {
	if logger == nil {
		return
	}

	seen := map[string]struct{}{}

	for _, r := range records {
		for name, v := range r.Results {
			if only != nil && !contains(only, name) {
				continue
			}

			if v.IsNumeric() {
				continue
			}

			if _, ok := numeric[name]; ok {
				continue
			}

			if _, done := seen[name]; done {
				continue
			}

			seen[name] = struct{}{}
			logger.Warn("summary: skipping non-numeric field", "field", name)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// fiveNumber computes mean, median, variance (population), min, max.
func fiveNumber(vals []float64) (mean, median, variance, min, max float64) {
	n := len(vals)
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	min, max = sorted[0], sorted[n-1]

	sum := 0.0
	for _, v := range vals {
		sum += v
	}

	mean = sum / float64(n)

	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	sqDiff := 0.0
	for _, v := range vals {
		d := v - mean
		sqDiff += d * d
	}

	variance = sqDiff / float64(n)

	return mean, median, variance, min, max
}
