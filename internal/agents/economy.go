package agents

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/orders"
)

// Rules holds the courier economy constants. Tuning files override them.
type Rules struct {
	BaseSpeed  float64 `yaml:"base_speed"` // Cells per second
	MaxStamina float64 `yaml:"max_stamina"`
	Capacity   float64 `yaml:"capacity"`

	StaminaPerCell     float64 `yaml:"stamina_per_cell"`
	WeightThreshold    float64 `yaml:"weight_threshold"`
	WeightDrainPerUnit float64 `yaml:"weight_drain_per_unit"`
	RecoveryPerSecond  float64 `yaml:"recovery_per_second"`
	ExhaustedRecoverTo float64 `yaml:"exhausted_recover_to"`
	TiredThreshold     float64 `yaml:"tired_threshold"`
	TiredSpeedFactor   float64 `yaml:"tired_speed_factor"`
	WeightSpeedPerUnit float64 `yaml:"weight_speed_per_unit"`
	MinWeightFactor    float64 `yaml:"min_weight_factor"`

	StartReputation  float64 `yaml:"start_reputation"`
	DefeatReputation float64 `yaml:"defeat_reputation"`
	EliteReputation  float64 `yaml:"elite_reputation"`
	EliteSpeedBonus  float64 `yaml:"elite_speed_bonus"`
	ElitePayoutBonus float64 `yaml:"elite_payout_bonus"`
	EarlyFraction    float64 `yaml:"early_fraction"`
	EarlyBonus       float64 `yaml:"early_bonus"`
	OnTimeBonus      float64 `yaml:"on_time_bonus"`
	StreakLength     int     `yaml:"streak_length"`
	StreakBonus      float64 `yaml:"streak_bonus"`
	CancelPenalty    float64 `yaml:"cancel_penalty"`
	ExpirePenalty    float64 `yaml:"expire_penalty"`
}

// DefaultRules returns the stock economy.
func DefaultRules() Rules {
	return Rules{
		BaseSpeed:  3.0,
		MaxStamina: 100,
		Capacity:   10,

		StaminaPerCell:     0.5,
		WeightThreshold:    3,
		WeightDrainPerUnit: 0.2,
		RecoveryPerSecond:  5,
		ExhaustedRecoverTo: 30,
		TiredThreshold:     30,
		TiredSpeedFactor:   0.8,
		WeightSpeedPerUnit: 0.03,
		MinWeightFactor:    0.8,

		StartReputation:  70,
		DefeatReputation: 20,
		EliteReputation:  90,
		EliteSpeedBonus:  1.03,
		ElitePayoutBonus: 0.05,
		EarlyFraction:    0.2,
		EarlyBonus:       5,
		OnTimeBonus:      3,
		StreakLength:     3,
		StreakBonus:      2,
		CancelPenalty:    4,
		ExpirePenalty:    10,
	}
}

// WeightFactor is the speed multiplier for a carried weight.
func (r *Rules) WeightFactor(weight float64) float64 {
	return math.Max(r.MinWeightFactor, 1-r.WeightSpeedPerUnit*weight)
}

// DrainPerCell is the stamina cost of one cell of travel at a carried
// weight plus the weather's extra drain.
func (r *Rules) DrainPerCell(weight, weatherDrain float64) float64 {
	d := r.StaminaPerCell + weatherDrain
	if weight > r.WeightThreshold {
		d += r.WeightDrainPerUnit * (weight - r.WeightThreshold)
	}
	return d
}

// ApplyWeatherEffects records this tick's weather multipliers.
func (c *Courier) ApplyWeatherEffects(speedMultiplier, staminaDrain float64) {
	c.weatherSpeed = speedMultiplier
	c.weatherDrain = staminaDrain
}

// WeatherEffects returns the multipliers set by ApplyWeatherEffects.
func (c *Courier) WeatherEffects() (speed, drain float64) {
	return c.weatherSpeed, c.weatherDrain
}

// Speed is the courier's movement speed in cells per second on a surface.
func (c *Courier) Speed(surfaceWeight float64) float64 {
	r := c.Rules
	if c.Exhausted || c.Stamina <= 0 {
		return 0
	}
	s := r.BaseSpeed * c.weatherSpeed * r.WeightFactor(c.Inventory.CurrentWeight())
	if c.Reputation >= r.EliteReputation {
		s *= r.EliteSpeedBonus
	}
	if c.Stamina <= r.TiredThreshold {
		s *= r.TiredSpeedFactor
	}
	if surfaceWeight > 0 {
		s /= surfaceWeight
	}
	return s
}

// DrainPerCell is the stamina cost of the next cell given the current load.
func (c *Courier) DrainPerCell() float64 {
	return c.Rules.DrainPerCell(c.Inventory.CurrentWeight(), c.weatherDrain)
}

// SpendStamina charges the stamina cost of moving the given distance.
// Reaching zero leaves the courier exhausted.
func (c *Courier) SpendStamina(cells float64) {
	if cells <= 0 {
		return
	}
	c.Stamina -= cells * c.DrainPerCell()
	c.Stats.CellsMoved += cells
	if c.Stamina <= 0 {
		c.Stamina = 0
		c.Exhausted = true
	}
}

// Recover restores stamina while the courier stands still.
func (c *Courier) Recover(dt float64) {
	r := c.Rules
	c.Stamina = math.Min(r.MaxStamina, c.Stamina+r.RecoveryPerSecond*dt)
	if c.Exhausted && c.Stamina >= r.ExhaustedRecoverTo {
		c.Exhausted = false
	}
}

// AddEarnings credits a payout.
func (c *Courier) AddEarnings(amount decimal.Decimal) {
	c.Earnings = c.Earnings.Add(amount)
}

// PayoutFor returns what delivering o pays this courier.
func (c *Courier) PayoutFor(o *orders.Order) decimal.Decimal {
	p := decimal.NewFromFloat(o.Payout)
	if c.Reputation >= c.Rules.EliteReputation {
		p = p.Mul(decimal.NewFromFloat(1 + c.Rules.ElitePayoutBonus))
	}
	return p.Round(2)
}

// UpdateReputationForDelivery applies the delivery bonus for o and returns
// the reputation change.
func (c *Courier) UpdateReputationForDelivery(o *orders.Order, now float64) float64 {
	r := c.Rules
	delta := r.OnTimeBonus
	remaining := o.TimeLimit - o.Elapsed(now)
	if o.TimeLimit > 0 && remaining >= r.EarlyFraction*o.TimeLimit {
		delta = r.EarlyBonus
		c.Stats.Early++
	} else {
		c.Stats.OnTime++
	}
	c.Stats.CleanStreak++
	if r.StreakLength > 0 && c.Stats.CleanStreak%r.StreakLength == 0 {
		delta += r.StreakBonus
	}
	c.adjustReputation(delta)
	return delta
}

// PickUp loads an accepted order once the courier is at its pickup.
func (c *Courier) PickUp(o *orders.Order, now float64) error {
	if !c.Inventory.CanCarry(o.Weight) {
		return fmt.Errorf("pick up %s: %w", o.ID, orders.ErrOverCapacity)
	}
	return o.PickUp(now)
}

// Deliver completes o, credits the payout and applies the reputation bonus.
func (c *Courier) Deliver(o *orders.Order, now float64) (decimal.Decimal, error) {
	if err := o.Deliver(now); err != nil {
		return decimal.Zero, err
	}
	c.Inventory.Remove(o.ID)
	pay := c.PayoutFor(o)
	c.AddEarnings(pay)
	c.UpdateReputationForDelivery(o, now)
	c.Stats.Delivered++
	return pay, nil
}

// CancelOrder drops an order the courier holds and applies the penalty.
func (c *Courier) CancelOrder(id string) (*orders.Order, error) {
	o := c.Inventory.Get(id)
	if o == nil {
		return nil, fmt.Errorf("cancel %s: %w", id, orders.ErrUnknownOrder)
	}
	if err := o.Cancel(); err != nil {
		return nil, err
	}
	c.Inventory.Remove(id)
	c.Stats.Cancelled++
	c.Stats.CleanStreak = 0
	c.adjustReputation(-c.Rules.CancelPenalty)
	return o, nil
}

// ExpireOrder marks o expired and applies the penalty. It reports false
// when o was already terminal, so the penalty lands once.
func (c *Courier) ExpireOrder(o *orders.Order) bool {
	if err := o.Expire(); err != nil {
		return false
	}
	c.Inventory.Remove(o.ID)
	c.Stats.Expired++
	c.Stats.CleanStreak = 0
	c.adjustReputation(-c.Rules.ExpirePenalty)
	return true
}

// Defeated reports whether reputation has fallen below the floor.
func (c *Courier) Defeated() bool {
	return c.Reputation < c.Rules.DefeatReputation
}

func (c *Courier) adjustReputation(delta float64) {
	c.Reputation = math.Max(0, math.Min(100, c.Reputation+delta))
}
