// Package policy provides cheap per-tick movement heuristics for couriers
// that do not run a full path search. Policies hold configuration only and
// are safe to call on every decision tick.
package policy

import (
	"math/rand"

	"github.com/talgya/courier-sim/internal/city"
)

// Step is a unit move on the grid; the zero value means stay put.
type Step struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Zero reports whether the step does not move.
func (s Step) Zero() bool { return s.DX == 0 && s.DY == 0 }

// Reverse returns the opposite step.
func (s Step) Reverse() Step { return Step{DX: -s.DX, DY: -s.DY} }

func walkableSteps(g city.Grid, pos city.Cell) []Step {
	steps := make([]Step, 0, 4)
	for _, d := range city.CardinalDirections {
		if g.IsWalkable(pos.X+d.X, pos.Y+d.Y) {
			steps = append(steps, Step{DX: d.X, DY: d.Y})
		}
	}
	return steps
}

// Greedy moves to the neighbour closest to the target by Manhattan
// distance, plus a flat climate penalty. Lookahead 2 scores each first move
// by the best walkable second hop instead.
type Greedy struct {
	ClimateWeight float64
	Lookahead     int
}

// NewGreedy returns the default greedy policy (one hop of lookahead).
func NewGreedy() Greedy {
	return Greedy{ClimateWeight: 0.5, Lookahead: 1}
}

// Step returns the best-scoring walkable step, or the zero step when none
// is walkable or the courier already stands on the target.
func (p Greedy) Step(g city.Grid, pos, target city.Cell, climateRisk float64) Step {
	if pos == target {
		return Step{}
	}

	best := Step{}
	bestScore := 0.0
	found := false
	for _, s := range walkableSteps(g, pos) {
		next := pos.Add(s.DX, s.DY)
		score := p.score(g, pos, next, target) + p.ClimateWeight*climateRisk
		if !found || score < bestScore {
			best, bestScore, found = s, score, true
		}
	}
	return best
}

func (p Greedy) score(g city.Grid, from, next, target city.Cell) float64 {
	first := float64(city.Manhattan(next, target))
	if p.Lookahead < 2 || next == target {
		return first
	}
	bestHop := first + 1
	for _, s := range walkableSteps(g, next) {
		hop := next.Add(s.DX, s.DY)
		if hop == from {
			continue
		}
		if d := float64(city.Manhattan(hop, target)); d < bestHop {
			bestHop = d
		}
	}
	return bestHop
}

// RandomChoice wanders among walkable neighbours. With probability Bias it
// takes the neighbour that minimises distance to the target instead, and it
// never immediately reverses the previous step when another option exists.
type RandomChoice struct {
	Bias float64
}

// Step picks the next move. A nil target is a pure random walk.
func (p RandomChoice) Step(g city.Grid, pos city.Cell, target *city.Cell, prev Step, rng *rand.Rand) Step {
	if target != nil && pos == *target {
		return Step{}
	}
	options := walkableSteps(g, pos)
	if len(options) == 0 {
		return Step{}
	}
	if len(options) > 1 && !prev.Zero() {
		back := prev.Reverse()
		filtered := options[:0:0]
		for _, s := range options {
			if s != back {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) > 0 {
			options = filtered
		}
	}

	if target != nil && rng.Float64() < p.Bias {
		best := options[0]
		bestDist := city.Manhattan(pos.Add(best.DX, best.DY), *target)
		for _, s := range options[1:] {
			if d := city.Manhattan(pos.Add(s.DX, s.DY), *target); d < bestDist {
				best, bestDist = s, d
			}
		}
		return best
	}
	return options[rng.Intn(len(options))]
}
