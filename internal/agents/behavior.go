package agents

import (
	"math/rand"

	"github.com/talgya/courier-sim/internal/city"
)

// Strategy decides an AI courier's order acceptance and movement. The set
// is closed: Easy, Medium and Hard.
type Strategy interface {
	Decide(c *Courier, w *World) Intent
	Difficulty() Difficulty
}

// NewStrategy builds the strategy for a difficulty tier. DifficultyNone
// yields nil: the courier is human-controlled.
func NewStrategy(d Difficulty, rng *rand.Rand) Strategy {
	switch d {
	case DifficultyEasy:
		return NewEasy(rng)
	case DifficultyMedium:
		return NewMedium(rng)
	case DifficultyHard:
		return NewHard()
	default:
		return nil
	}
}

// restCycle is the shared Resting state: enter at or below Start, leave at
// or above Target.
type restCycle struct {
	Start  float64
	Target float64
}

// update moves the courier in or out of ModeResting and reports whether it
// is resting after the update.
func (r restCycle) update(c *Courier) bool {
	if c.Mode == ModeResting {
		if c.Stamina >= r.Target && !c.Exhausted {
			c.Mode = ModeIdle
			return false
		}
		return true
	}
	if c.Stamina <= r.Start || c.Exhausted {
		c.Mode = ModeResting
		return true
	}
	return false
}

// seek points the courier at its active target and sets the mode to match.
func seek(c *Courier) *city.Cell {
	t := c.ActiveTarget()
	c.Target = t
	if t == nil {
		c.Mode = ModeIdle
	} else {
		c.Mode = ModeSeeking
	}
	return t
}
