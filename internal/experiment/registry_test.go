package experiment_test

import (
	"testing"

	"github.com/epyc-go/epyc/internal/experiment"
)

type incrementExperiment struct {
	experiment.Base
}

func newIncrementExperiment() *incrementExperiment {
	e := &incrementExperiment{Base: experiment.NewBase("increment")}
	e.Base.Init(e, nil)

	return e
}

func (e *incrementExperiment) Do(point experiment.Parameters) (experiment.Outcome, error) {
	return experiment.SingleOutcome(experiment.Results{"y": experiment.Int64(point["x"].Int + 1)}), nil
}

func (e *incrementExperiment) Clone() experiment.Experiment { return newIncrementExperiment() }

func TestRegistry_RegisterAndNew(t *testing.T) {
	registry := experiment.NewRegistry()
	registry.Register("increment", func() experiment.Experiment { return newIncrementExperiment() })

	exp, err := registry.New("increment")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	record := exp.Set(experiment.Parameters{"x": experiment.Int64(1)}).Run()

	if !record.Success() || record.Results["y"].Int != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestRegistry_NewUnknownClass(t *testing.T) {
	registry := experiment.NewRegistry()

	if _, err := registry.New("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestRegistry_NewConstructsFreshInstanceEachTime(t *testing.T) {
	registry := experiment.NewRegistry()
	registry.Register("increment", func() experiment.Experiment { return newIncrementExperiment() })

	first, err := registry.New("increment")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	second, err := registry.New("increment")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first.Set(experiment.Parameters{"x": experiment.Int64(5)})

	if second.Phase() != experiment.PhaseFresh {
		t.Fatalf("expected second instance untouched by first's Set, got phase %v", second.Phase())
	}
}
