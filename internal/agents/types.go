// Package agents provides the courier data model, the courier economy
// (stamina, reputation, earnings) and the tiered decision strategies.
package agents

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/policy"
)

// CourierID is a unique identifier for a courier.
type CourierID uint32

// Difficulty determines how an AI courier makes decisions.
type Difficulty uint8

const (
	DifficultyNone   Difficulty = iota // Human-controlled
	DifficultyEasy                     // Random walk, impulsive acceptance
	DifficultyMedium                   // Scored acceptance, greedy steps
	DifficultyHard                     // A* movement, sequence planning
)

// ParseDifficulty maps a tuning string to a Difficulty.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch s {
	case "easy":
		return DifficultyEasy, true
	case "medium":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	case "", "player", "human":
		return DifficultyNone, true
	default:
		return DifficultyNone, false
	}
}

func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return "player"
	}
}

// Mode is the courier's coarse behavioural state.
type Mode uint8

const (
	ModeIdle    Mode = iota // No target, no order
	ModeSeeking             // Heading to a pickup or dropoff
	ModeResting             // Recovering stamina; may still accept orders
)

func (m Mode) String() string {
	switch m {
	case ModeSeeking:
		return "seeking"
	case ModeResting:
		return "resting"
	default:
		return "idle"
	}
}

// Intent is the discrete movement a strategy asks for, in {-1,0,1}².
type Intent = policy.Step

// Courier is a player or AI delivery agent.
type Courier struct {
	ID   CourierID `json:"id"`
	Name string    `json:"name"`

	// Location. Cell centres sit on integer coordinates.
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"` // Radians

	// Economy
	Stamina    float64           `json:"stamina"`    // 0–100
	Reputation float64           `json:"reputation"` // 0–100
	Earnings   decimal.Decimal   `json:"earnings"`
	Inventory  *orders.Inventory `json:"inventory"`
	Exhausted  bool              `json:"exhausted"` // Hit zero stamina; frozen until recovered

	// Control
	Difficulty Difficulty `json:"difficulty"`
	Strategy   Strategy   `json:"-"`
	Mode       Mode       `json:"mode"`
	Target     *city.Cell `json:"target,omitempty"`
	Waypoint   *city.Cell `json:"waypoint,omitempty"` // Cell the courier is currently moving into
	LastStep   Intent     `json:"last_step"`

	// DecisionCooldown counts down to the next strategy call.
	DecisionCooldown float64 `json:"-"`

	Stats CourierStats `json:"stats"`
	Rules *Rules       `json:"-"`

	// Weather effects applied this tick.
	weatherSpeed float64
	weatherDrain float64
}

// CourierStats tracks per-courier outcome counters.
type CourierStats struct {
	Delivered   int     `json:"delivered"`
	OnTime      int     `json:"on_time"`
	Early       int     `json:"early"`
	Cancelled   int     `json:"cancelled"`
	Expired     int     `json:"expired"`
	CleanStreak int     `json:"clean_streak"`
	CellsMoved  float64 `json:"cells_moved"`
}

// NewCourier creates a courier at a cell with full stamina.
func NewCourier(id CourierID, name string, at city.Cell, rules *Rules) *Courier {
	if rules == nil {
		r := DefaultRules()
		rules = &r
	}
	return &Courier{
		ID:           id,
		Name:         name,
		X:            float64(at.X),
		Y:            float64(at.Y),
		Stamina:      rules.MaxStamina,
		Reputation:   rules.StartReputation,
		Earnings:     decimal.Zero,
		Inventory:    orders.NewInventory(rules.Capacity),
		Rules:        rules,
		weatherSpeed: 1,
	}
}

// IsAI reports whether a strategy drives this courier.
func (c *Courier) IsAI() bool {
	return c.Strategy != nil
}

// Cell returns the cell whose centre is nearest the courier.
func (c *Courier) Cell() city.Cell {
	return city.Cell{X: int(math.Floor(c.X + 0.5)), Y: int(math.Floor(c.Y + 0.5))}
}

// Place moves the courier to a cell centre and clears any waypoint.
func (c *Courier) Place(at city.Cell) {
	c.X = float64(at.X)
	c.Y = float64(at.Y)
	c.Waypoint = nil
}

// ActiveTarget returns where the courier should head next: the dropoff of
// the first carried order, otherwise the pickup of the first accepted one.
func (c *Courier) ActiveTarget() *city.Cell {
	held := c.Inventory.Orders()
	for _, o := range held {
		if o.Status == orders.StatusPickedUp {
			t := o.Dropoff
			return &t
		}
	}
	for _, o := range held {
		if o.Status == orders.StatusInProgress {
			t := o.Pickup
			return &t
		}
	}
	return nil
}
