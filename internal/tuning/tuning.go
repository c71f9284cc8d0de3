// Package tuning loads the simulation's YAML tuning file over built-in
// defaults.
package tuning

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/engine"
	"github.com/talgya/courier-sim/internal/weather"
)

type Tuning struct {
	Sim     Sim                  `yaml:"sim"`
	City    City                 `yaml:"city"`
	Weather Weather              `yaml:"weather"`
	Courier agents.Rules         `yaml:"courier"`
	Orders  Orders               `yaml:"orders"`
	Agents  []agents.CourierSpec `yaml:"agents"`
}

type Sim struct {
	TickRate         int     `yaml:"tick_rate"`
	SessionSeconds   float64 `yaml:"session_seconds"`
	GoalEarnings     string  `yaml:"goal_earnings"`
	Seed             int64   `yaml:"seed"` // 0 = fresh entropy
	DecisionInterval float64 `yaml:"decision_interval"`
	EventLimit       int     `yaml:"event_limit"`
}

type City struct {
	Width      int      `yaml:"width"`
	Height     int      `yaml:"height"`
	BlockSize  int      `yaml:"block_size"`
	ParkLevel  float64  `yaml:"park_level"`
	PlazaLevel float64  `yaml:"plaza_level"`
	Alleys     float64  `yaml:"alleys"`
	Rows       []string `yaml:"rows,omitempty"` // Fixed map; overrides generation
}

type Weather struct {
	Enabled           bool    `yaml:"enabled"`
	BurstMin          float64 `yaml:"burst_min"`
	BurstMax          float64 `yaml:"burst_max"`
	TransitionSeconds float64 `yaml:"transition_seconds"`
	Initial           string  `yaml:"initial"`

	// Transitions overrides rows of the Markov matrix: from -> to -> p.
	Transitions map[string]map[string]float64 `yaml:"transitions,omitempty"`
}

type Orders struct {
	PickupRadius  float64 `yaml:"pickup_radius"`
	PendingTTL    float64 `yaml:"pending_ttl"`
	FallbackCount int     `yaml:"fallback_count"`
	MaxPayout     float64 `yaml:"max_payout"`
}

// Default returns the stock tuning.
func Default() Tuning {
	gen := city.DefaultGenConfig()
	wc := weather.DefaultConfig()
	sc := engine.DefaultConfig()
	return Tuning{
		Sim: Sim{
			TickRate:         engine.DefaultTickRate,
			SessionSeconds:   sc.SessionLength,
			GoalEarnings:     sc.GoalEarnings.StringFixed(2),
			DecisionInterval: sc.DecisionInterval,
			EventLimit:       sc.EventLimit,
		},
		City: City{
			Width:      gen.Width,
			Height:     gen.Height,
			BlockSize:  gen.BlockSize,
			ParkLevel:  gen.ParkLevel,
			PlazaLevel: gen.PlazaLvl,
			Alleys:     gen.Alleys,
		},
		Weather: Weather{
			Enabled:           true,
			BurstMin:          wc.BurstMin,
			BurstMax:          wc.BurstMax,
			TransitionSeconds: wc.TransitionSeconds,
			Initial:           string(wc.Initial),
		},
		Courier: agents.DefaultRules(),
		Orders: Orders{
			PickupRadius:  sc.PickupRadius,
			PendingTTL:    180,
			FallbackCount: 24,
			MaxPayout:     120,
		},
		Agents: []agents.CourierSpec{
			{Name: "You", Difficulty: "player"},
			{Difficulty: "easy"},
			{Difficulty: "medium"},
			{Difficulty: "hard"},
		},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate rejects values the simulation cannot run with.
func (t Tuning) Validate() error {
	switch {
	case t.Sim.TickRate <= 0:
		return fmt.Errorf("sim.tick_rate must be positive, got %d", t.Sim.TickRate)
	case t.Sim.SessionSeconds < 0:
		return fmt.Errorf("sim.session_seconds must not be negative")
	case t.Sim.DecisionInterval < 0:
		return fmt.Errorf("sim.decision_interval must not be negative")
	case t.Weather.BurstMin <= 0 || t.Weather.BurstMin > t.Weather.BurstMax:
		return fmt.Errorf("weather burst range [%v, %v] is invalid", t.Weather.BurstMin, t.Weather.BurstMax)
	case t.Weather.TransitionSeconds < 0:
		return fmt.Errorf("weather.transition_seconds must not be negative")
	case t.Courier.Capacity <= 0:
		return fmt.Errorf("courier.capacity must be positive, got %v", t.Courier.Capacity)
	case t.Courier.BaseSpeed <= 0:
		return fmt.Errorf("courier.base_speed must be positive, got %v", t.Courier.BaseSpeed)
	case t.Courier.MaxStamina <= 0:
		return fmt.Errorf("courier.max_stamina must be positive")
	case t.Orders.PickupRadius <= 0:
		return fmt.Errorf("orders.pickup_radius must be positive")
	case len(t.Agents) == 0:
		return fmt.Errorf("agents: at least one courier is required")
	}
	if len(t.City.Rows) == 0 && (t.City.Width < 3 || t.City.Height < 3) {
		return fmt.Errorf("city %dx%d is too small", t.City.Width, t.City.Height)
	}
	if _, err := t.Goal(); err != nil {
		return err
	}
	if _, ok := weather.Parse(t.Weather.Initial); !ok {
		return fmt.Errorf("weather.initial: unknown condition %q", t.Weather.Initial)
	}
	if _, err := t.transitions(); err != nil {
		return err
	}
	for _, a := range t.Agents {
		if _, ok := agents.ParseDifficulty(a.Difficulty); !ok {
			return fmt.Errorf("agents: unknown difficulty %q", a.Difficulty)
		}
	}
	return nil
}

// Goal returns the earnings goal; empty means none.
func (t Tuning) Goal() (decimal.Decimal, error) {
	if t.Sim.GoalEarnings == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(t.Sim.GoalEarnings)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sim.goal_earnings: %w", err)
	}
	return d, nil
}

// SessionConfig builds the simulation rules.
func (t Tuning) SessionConfig() engine.Config {
	goal, _ := t.Goal()
	return engine.Config{
		DecisionInterval: t.Sim.DecisionInterval,
		PickupRadius:     t.Orders.PickupRadius,
		SessionLength:    t.Sim.SessionSeconds,
		GoalEarnings:     goal,
		EventLimit:       t.Sim.EventLimit,
	}
}

// GenConfig builds the city generator settings for a seed.
func (t Tuning) GenConfig(seed int64) city.GenConfig {
	return city.GenConfig{
		Width:     t.City.Width,
		Height:    t.City.Height,
		BlockSize: t.City.BlockSize,
		Seed:      seed,
		ParkLevel: t.City.ParkLevel,
		PlazaLvl:  t.City.PlazaLevel,
		Alleys:    t.City.Alleys,
	}
}

// WeatherConfig builds the weather engine settings.
func (t Tuning) WeatherConfig() weather.Config {
	initial, _ := weather.Parse(t.Weather.Initial)
	m, _ := t.transitions()
	return weather.Config{
		BurstMin:          t.Weather.BurstMin,
		BurstMax:          t.Weather.BurstMax,
		TransitionSeconds: t.Weather.TransitionSeconds,
		Initial:           initial,
		Transitions:       m,
	}
}

// transitions merges overridden rows into the default matrix. Each
// overridden row must sum to 1.
func (t Tuning) transitions() (weather.Matrix, error) {
	if len(t.Weather.Transitions) == 0 {
		return nil, nil
	}
	m := weather.DefaultTransitions()
	for from, row := range t.Weather.Transitions {
		fc, ok := weather.Parse(from)
		if !ok {
			return nil, fmt.Errorf("weather.transitions: unknown condition %q", from)
		}
		targets := make([]string, 0, len(row))
		for to := range row {
			targets = append(targets, to)
		}
		sort.Strings(targets)

		var out []weather.Transition
		sum := 0.0
		for _, to := range targets {
			tc, ok := weather.Parse(to)
			if !ok {
				return nil, fmt.Errorf("weather.transitions[%s]: unknown condition %q", from, to)
			}
			p := row[to]
			if p < 0 {
				return nil, fmt.Errorf("weather.transitions[%s][%s]: negative probability", from, to)
			}
			out = append(out, weather.Transition{To: tc, Probability: p})
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			return nil, fmt.Errorf("weather.transitions[%s] sums to %.4f, want 1", from, sum)
		}
		m[fc] = out
	}
	return m, nil
}
