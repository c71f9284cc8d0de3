package policy

import (
	"math/rand"
	"testing"

	"github.com/talgya/courier-sim/internal/city"
)

func TestGreedyMovesTowardTarget(t *testing.T) {
	m := city.MustFromRows(
		"CCCCC",
		"CCCCC",
		"CCCCC",
	)
	p := NewGreedy()
	got := p.Step(m, city.Cell{X: 0, Y: 1}, city.Cell{X: 4, Y: 1}, 0)
	if got != (Step{DX: 1}) {
		t.Fatalf("Step = %+v, want right", got)
	}
	if got := p.Step(m, city.Cell{X: 2, Y: 2}, city.Cell{X: 2, Y: 0}, 1); got != (Step{DY: -1}) {
		t.Fatalf("Step with climate risk = %+v, want up", got)
	}
	if got := p.Step(m, city.Cell{X: 4, Y: 1}, city.Cell{X: 4, Y: 1}, 0); !got.Zero() {
		t.Fatalf("Step at target = %+v, want zero", got)
	}
}

func TestGreedyNoWalkableNeighbour(t *testing.T) {
	m := city.MustFromRows(
		"BBB",
		"BCB",
		"BBB",
	)
	if got := NewGreedy().Step(m, city.Cell{X: 1, Y: 1}, city.Cell{}, 0); !got.Zero() {
		t.Fatalf("Step = %+v, want zero", got)
	}
}

func TestGreedyLookaheadScoresSecondHop(t *testing.T) {
	// Right and down tie on the first hop and on the best second hop.
	m := city.MustFromRows(
		"CCB",
		"CCC",
	)
	target := city.Cell{X: 2, Y: 1}
	shallow := Greedy{Lookahead: 1}
	deep := Greedy{Lookahead: 2}
	pos := city.Cell{X: 0, Y: 0}

	if got := shallow.Step(m, pos, target, 0); got != (Step{DX: 1}) {
		t.Fatalf("shallow Step = %+v, want right (first in order among ties)", got)
	}
	if got := deep.Step(m, pos, target, 0); got.Zero() {
		t.Fatalf("deep Step should move")
	}
}

func TestRandomChoiceNeverReversesWhenAlternative(t *testing.T) {
	m := city.MustFromRows(
		"CCC",
		"CCC",
		"CCC",
	)
	p := RandomChoice{Bias: 0}
	rng := rand.New(rand.NewSource(9))
	prev := Step{DX: 1}
	for i := 0; i < 200; i++ {
		got := p.Step(m, city.Cell{X: 1, Y: 1}, nil, prev, rng)
		if got == prev.Reverse() {
			t.Fatalf("reversed previous step")
		}
		if got.Zero() {
			t.Fatalf("zero step with open neighbours")
		}
	}
}

func TestRandomChoiceReversesInDeadEnd(t *testing.T) {
	m := city.MustFromRows("CCB")
	got := RandomChoice{}.Step(m, city.Cell{X: 1}, nil, Step{DX: 1}, rand.New(rand.NewSource(1)))
	if got != (Step{DX: -1}) {
		t.Fatalf("Step = %+v, want the only way out", got)
	}
}

func TestRandomChoiceFullBiasIsGreedy(t *testing.T) {
	m := city.MustFromRows(
		"CCCCC",
		"CCCCC",
	)
	target := city.Cell{X: 4, Y: 0}
	p := RandomChoice{Bias: 1}
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 50; i++ {
		got := p.Step(m, city.Cell{X: 1, Y: 0}, &target, Step{}, rng)
		if got != (Step{DX: 1}) {
			t.Fatalf("Step = %+v, want right", got)
		}
	}
}
