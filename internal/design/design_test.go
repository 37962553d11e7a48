package design

import (
	"errors"
	"testing"

	"github.com/epyc-go/epyc/internal/experiment"
)

func TestFactorial_CrossProduct(t *testing.T) {
	ranges := Ranges{
		{Name: "a", Values: []experiment.Value{experiment.Int64(1), experiment.Int64(2)}},
		{Name: "b", Values: []experiment.Value{experiment.Int64(3), experiment.Int64(4)}},
	}

	points, err := Factorial{}.Experiments(nil, ranges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(points))
	}

	totals := map[int64]int{}

	for _, p := range points {
		total := p.Parameters["a"].Int + p.Parameters["b"].Int
		totals[total]++
	}

	want := map[int64]int{4: 1, 5: 2, 6: 1}

	for k, n := range want {
		if totals[k] != n {
			t.Errorf("expected %d points with total=%d, got %d", n, k, totals[k])
		}
	}
}

func TestFactorial_SkipsZeroLengthDimension(t *testing.T) {
	ranges := Ranges{
		{Name: "a", Values: []experiment.Value{experiment.Int64(1), experiment.Int64(2)}},
		{Name: "b", Values: nil},
	}

	points, err := Factorial{}.Experiments(nil, ranges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 points (b skipped), got %d", len(points))
	}

	for _, p := range points {
		if _, ok := p.Parameters["b"]; ok {
			t.Errorf("expected field b absent, got %v", p.Parameters)
		}
	}
}

func TestPointwise_ZipsInLockstep(t *testing.T) {
	ranges := Ranges{
		{Name: "a", Values: []experiment.Value{experiment.Int64(1), experiment.Int64(2)}},
		{Name: "b", Values: []experiment.Value{experiment.Int64(3), experiment.Int64(4)}},
	}

	points, err := Pointwise{}.Experiments(nil, ranges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}

	if points[0].Parameters["a"].Int != 1 || points[0].Parameters["b"].Int != 3 {
		t.Errorf("unexpected first point: %v", points[0].Parameters)
	}

	if points[1].Parameters["a"].Int != 2 || points[1].Parameters["b"].Int != 4 {
		t.Errorf("unexpected second point: %v", points[1].Parameters)
	}
}

func TestPointwise_BroadcastsSingleton(t *testing.T) {
	ranges := Ranges{
		{Name: "a", Values: []experiment.Value{experiment.Int64(1), experiment.Int64(2), experiment.Int64(3)}},
		{Name: "b", Values: []experiment.Value{experiment.Int64(4)}},
	}

	points, err := Pointwise{}.Experiments(nil, ranges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}

	for _, p := range points {
		if p.Parameters["b"].Int != 4 {
			t.Errorf("expected broadcast b=4, got %v", p.Parameters["b"])
		}
	}
}

func TestPointwise_MismatchedLengthsRaiseDesign(t *testing.T) {
	ranges := Ranges{
		{Name: "a", Values: []experiment.Value{experiment.Int64(1), experiment.Int64(2), experiment.Int64(3)}},
		{Name: "b", Values: []experiment.Value{experiment.Int64(4), experiment.Int64(5)}},
	}

	_, err := Pointwise{}.Experiments(nil, ranges)
	if !errors.Is(err, ErrDesign) {
		t.Fatalf("expected ErrDesign, got %v", err)
	}
}

func TestAt_ReturnsExplicitPoints(t *testing.T) {
	points := []experiment.Parameters{
		{"a": experiment.Int64(7)},
		{"a": experiment.Int64(8)},
	}

	got, err := At{Points: points}.Experiments(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}

	if got[0].Parameters["a"].Int != 7 || got[1].Parameters["a"].Int != 8 {
		t.Errorf("unexpected points: %+v", got)
	}

	// Mutating the returned parameters must not affect the original input.
	got[0].Parameters["a"] = experiment.Int64(99)

	if points[0]["a"].Int != 7 {
		t.Errorf("At did not clone points: original mutated to %v", points[0]["a"])
	}
}
