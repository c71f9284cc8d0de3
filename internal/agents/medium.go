package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/policy"
)

// Medium scores every pending order, takes the best one and walks toward
// its target greedily.
type Medium struct {
	rng    *rand.Rand
	Policy policy.Greedy
	Wander policy.RandomChoice
	Rest   restCycle

	MaxOrders       int
	PriorityBonus   float64 // Per priority level
	DistancePenalty float64 // Per cell of pickup + delivery distance
	WeatherPenalty  float64 // Scaled by the lost speed fraction
	StaminaPenalty  float64 // Per stamina point below LowStamina, per weight unit
	LowStamina      float64
	MinScore        float64

	// StuckLimit is how many decisions without progress force a rest.
	StuckLimit int

	goal    city.Cell
	history [3]city.Cell
	seen    int
	stuck   int
	wander  int
}

// NewMedium returns a medium strategy with the stock weights.
func NewMedium(rng *rand.Rand) *Medium {
	return &Medium{
		rng:             rng,
		Policy:          policy.NewGreedy(),
		Wander:          policy.RandomChoice{Bias: 0.3},
		Rest:            restCycle{Start: 20, Target: 50},
		MaxOrders:       2,
		PriorityBonus:   25,
		DistancePenalty: 2,
		WeatherPenalty:  100,
		StaminaPenalty:  1.5,
		LowStamina:      40,
		MinScore:        0,
		StuckLimit:      6,
	}
}

func (m *Medium) Difficulty() Difficulty { return DifficultyMedium }

func (m *Medium) Decide(c *Courier, w *World) Intent {
	if c.Stamina <= 0 || c.Exhausted {
		c.Mode = ModeResting
	}
	resting := m.Rest.update(c)

	if c.Inventory.Len() < m.MaxOrders {
		if best := m.pick(c, w); best != nil {
			w.Pool.Accept(c.Inventory, best.ID, w.Now)
		}
	}

	if resting {
		m.stuck = 0
		c.Target = c.ActiveTarget()
		return Intent{}
	}

	target := seek(c)
	if target == nil {
		m.stuck = 0
		return Intent{}
	}
	pos := c.Cell()
	if *target != m.goal {
		m.goal = *target
		m.seen = 0
	}
	m.record(pos)

	if m.wander > 0 {
		m.wander--
		return m.Wander.Step(w.Grid, pos, target, c.LastStep, m.rng)
	}

	_, _, risk, _ := w.WeatherFactors()
	step := m.Policy.Step(w.Grid, pos, *target, risk)
	if step.Zero() && pos != *target {
		m.stuck++
	} else {
		m.stuck = 0
	}
	if m.stuck >= m.StuckLimit {
		m.stuck = 0
		c.Mode = ModeResting
		return Intent{}
	}
	if m.oscillating() {
		// Greedy bounced between two cells; walk it off.
		m.wander = 4
		m.seen = 0
		return m.Wander.Step(w.Grid, pos, target, c.LastStep, m.rng)
	}
	return step
}

// Score rates a pending order for this courier; higher is better.
func (m *Medium) Score(c *Courier, w *World, o *orders.Order) float64 {
	speed, _, _, _ := w.WeatherFactors()
	pos := c.Cell()
	dist := float64(city.Manhattan(pos, o.Pickup) + city.Manhattan(o.Pickup, o.Dropoff))

	score := o.Payout + float64(o.Priority)*m.PriorityBonus - dist*m.DistancePenalty
	score -= math.Max(0, 1-speed) * m.WeatherPenalty
	if c.Stamina < m.LowStamina {
		score -= (m.LowStamina - c.Stamina) * m.StaminaPenalty * math.Max(1, o.Weight)
	}
	return score
}

func (m *Medium) pick(c *Courier, w *World) *orders.Order {
	speed, _, _, _ := w.WeatherFactors()
	travel := c.Rules.BaseSpeed * math.Max(speed, 0.1)
	pos := c.Cell()

	var best *orders.Order
	bestScore := m.MinScore
	for _, o := range w.Pool.Pending() {
		if !c.Inventory.CanCarry(o.Weight) {
			continue
		}
		dist := float64(city.Manhattan(pos, o.Pickup) + city.Manhattan(o.Pickup, o.Dropoff))
		if o.TimeLimit > 0 && dist/travel > o.TimeLimit {
			continue
		}
		if s := m.Score(c, w, o); s > bestScore {
			best, bestScore = o, s
		}
	}
	return best
}

func (m *Medium) record(pos city.Cell) {
	if m.seen > 0 && m.history[0] == pos {
		return
	}
	m.history[2], m.history[1], m.history[0] = m.history[1], m.history[0], pos
	m.seen++
}

// oscillating reports an A-B-A pattern in the last three distinct cells.
func (m *Medium) oscillating() bool {
	return m.seen >= 3 && m.history[0] == m.history[2] && m.history[0] != m.history[1]
}
