package main

import "github.com/epyc-go/epyc/internal/experiment"

// echoExperiment copies every bound parameter into its results unchanged,
// a minimal experiment_class a freshly deployed worker can always run
// (used to smoke-test a labd/worker pair before real experiment classes
// are wired in via registerBuiltinExperiments).
type echoExperiment struct {
	experiment.Base
}

func newEchoExperiment() *echoExperiment {
	e := &echoExperiment{Base: experiment.NewBase("echo")}
	e.Base.Init(e, nil)

	return e
}

func (e *echoExperiment) Do(point experiment.Parameters) (experiment.Outcome, error) {
	results := make(experiment.Results, len(point))
	for k, v := range point {
		results[k] = v
	}

	return experiment.SingleOutcome(results), nil
}

// Clone returns a fresh echoExperiment, since it carries no construction-
// time configuration beyond its class name.
func (e *echoExperiment) Clone() experiment.Experiment { return newEchoExperiment() }

// registerBuiltinExperiments binds the experiment classes this worker
// binary can run. Production deployments replace or extend this with
// their own experiment_class factories.
func registerBuiltinExperiments(registry *experiment.Registry) {
	registry.Register("echo", func() experiment.Experiment { return newEchoExperiment() })
}
