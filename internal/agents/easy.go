package agents

import (
	"math/rand"

	"github.com/talgya/courier-sim/internal/policy"
)

// Easy wanders toward its target and takes orders on impulse.
type Easy struct {
	rng    *rand.Rand
	Policy policy.RandomChoice
	Rest   restCycle

	// Imprudence is the chance of ignoring low stamina when accepting.
	Imprudence   float64
	AcceptChance float64
	LowStamina   float64
	MaxOrders    int
}

// NewEasy rolls a per-courier personality: rest thresholds and imprudence
// differ between easy couriers.
func NewEasy(rng *rand.Rand) *Easy {
	return &Easy{
		rng:    rng,
		Policy: policy.RandomChoice{Bias: 0.6},
		Rest: restCycle{
			Start:  15 + rng.Float64()*15,
			Target: 45 + rng.Float64()*25,
		},
		Imprudence:   rng.Float64() * 0.5,
		AcceptChance: 0.35,
		LowStamina:   40,
		MaxOrders:    1,
	}
}

func (e *Easy) Difficulty() Difficulty { return DifficultyEasy }

func (e *Easy) Decide(c *Courier, w *World) Intent {
	resting := e.Rest.update(c)

	if c.Inventory.Len() < e.MaxOrders && e.rng.Float64() < e.AcceptChance {
		e.acceptFirst(c, w)
	}

	if resting {
		c.Target = c.ActiveTarget()
		return Intent{}
	}
	target := seek(c)
	return e.Policy.Step(w.Grid, c.Cell(), target, c.LastStep, e.rng)
}

// acceptFirst takes the first pending order that fits. A tired courier
// passes unless its imprudence wins the roll.
func (e *Easy) acceptFirst(c *Courier, w *World) {
	if c.Stamina < e.LowStamina && e.rng.Float64() >= e.Imprudence {
		return
	}
	for _, o := range w.Pool.Pending() {
		if !c.Inventory.CanCarry(o.Weight) {
			continue
		}
		if _, err := w.Pool.Accept(c.Inventory, o.ID, w.Now); err == nil {
			return
		}
	}
}
