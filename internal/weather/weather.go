// Package weather provides the city's weather: a Markov chain over named
// conditions with timed bursts and a smooth cross-fade between states.
// Conditions map to simulation modifiers (speed multiplier and stamina drain).
package weather

import (
	"log/slog"
	"math/rand"
	"strings"
)

// Condition names a weather state.
type Condition string

const (
	Clear     Condition = "clear"
	Clouds    Condition = "clouds"
	RainLight Condition = "rain_light"
	Rain      Condition = "rain"
	Storm     Condition = "storm"
	Fog       Condition = "fog"
	Wind      Condition = "wind"
	Heat      Condition = "heat"
	Cold      Condition = "cold"
)

// Conditions lists every condition in matrix order.
var Conditions = [9]Condition{Clear, Clouds, RainLight, Rain, Storm, Fog, Wind, Heat, Cold}

// Color is an RGB triple handed to the renderer untouched.
type Color [3]uint8

// Profile holds the modifiers for one condition.
type Profile struct {
	SpeedMultiplier float64 `json:"speed_multiplier"` // Multiplier on courier speed
	StaminaDrain    float64 `json:"stamina_drain"`    // Extra stamina spent per cell
	Sky             Color   `json:"sky"`
	Cloud           Color   `json:"cloud"`
}

var (
	defaultSky   = Color{135, 206, 235}
	defaultCloud = Color{255, 255, 255}
)

// neutral is returned for unknown conditions.
var neutral = Profile{SpeedMultiplier: 1.0, StaminaDrain: 0.0, Sky: defaultSky, Cloud: defaultCloud}

// Profiles is the per-condition modifier table.
var Profiles = map[Condition]Profile{
	Clear:     {SpeedMultiplier: 1.00, StaminaDrain: 0.00, Sky: Color{135, 206, 235}, Cloud: Color{255, 255, 255}},
	Clouds:    {SpeedMultiplier: 0.98, StaminaDrain: 0.00, Sky: Color{170, 185, 200}, Cloud: Color{220, 220, 225}},
	RainLight: {SpeedMultiplier: 0.90, StaminaDrain: 0.05, Sky: Color{130, 145, 160}, Cloud: Color{180, 185, 190}},
	Rain:      {SpeedMultiplier: 0.85, StaminaDrain: 0.10, Sky: Color{100, 110, 125}, Cloud: Color{140, 145, 150}},
	Storm:     {SpeedMultiplier: 0.75, StaminaDrain: 0.30, Sky: Color{55, 60, 75}, Cloud: Color{90, 90, 100}},
	Fog:       {SpeedMultiplier: 0.88, StaminaDrain: 0.00, Sky: Color{200, 200, 205}, Cloud: Color{235, 235, 235}},
	Wind:      {SpeedMultiplier: 0.92, StaminaDrain: 0.10, Sky: Color{150, 195, 225}, Cloud: Color{240, 240, 245}},
	Heat:      {SpeedMultiplier: 0.90, StaminaDrain: 0.20, Sky: Color{250, 200, 120}, Cloud: Color{255, 240, 220}},
	Cold:      {SpeedMultiplier: 0.92, StaminaDrain: 0.05, Sky: Color{190, 215, 240}, Cloud: Color{245, 250, 255}},
}

// ProfileFor returns the modifiers for c, or neutral defaults for unknown keys.
func ProfileFor(c Condition) Profile {
	if p, ok := Profiles[c]; ok {
		return p
	}
	return neutral
}

// Parse resolves a condition name case-insensitively.
func Parse(name string) (Condition, bool) {
	c := Condition(strings.ToLower(strings.TrimSpace(name)))
	_, ok := Profiles[c]
	return c, ok
}

// Transition is one weighted edge out of a condition.
type Transition struct {
	To          Condition `json:"to"`
	Probability float64   `json:"probability"`
}

// Matrix maps each condition to its outgoing transitions. Rows are
// row-stochastic: probabilities in a row sum to 1.
type Matrix map[Condition][]Transition

// DefaultTransitions returns the standard 9×9 transition matrix.
func DefaultTransitions() Matrix {
	return Matrix{
		Clear:     {{Clear, 0.45}, {Clouds, 0.25}, {RainLight, 0.10}, {Wind, 0.10}, {Heat, 0.05}, {Fog, 0.05}},
		Clouds:    {{Clear, 0.30}, {Clouds, 0.30}, {RainLight, 0.20}, {Rain, 0.10}, {Fog, 0.05}, {Wind, 0.05}},
		RainLight: {{Clouds, 0.30}, {RainLight, 0.25}, {Rain, 0.25}, {Clear, 0.10}, {Fog, 0.10}},
		Rain:      {{RainLight, 0.30}, {Rain, 0.30}, {Storm, 0.20}, {Clouds, 0.15}, {Fog, 0.05}},
		Storm:     {{Rain, 0.50}, {Storm, 0.20}, {Clouds, 0.20}, {Wind, 0.10}},
		Fog:       {{Clear, 0.30}, {Clouds, 0.30}, {Fog, 0.20}, {RainLight, 0.20}},
		Wind:      {{Clear, 0.30}, {Clouds, 0.30}, {Wind, 0.20}, {RainLight, 0.10}, {Storm, 0.10}},
		Heat:      {{Clear, 0.50}, {Heat, 0.30}, {Clouds, 0.20}},
		Cold:      {{Clear, 0.30}, {Clouds, 0.30}, {Cold, 0.30}, {Fog, 0.10}},
	}
}

// RowSum returns the total outgoing probability of a condition.
func (m Matrix) RowSum(c Condition) float64 {
	total := 0.0
	for _, t := range m[c] {
		total += t.Probability
	}
	return total
}

// Next picks the next condition from the current row by cumulative
// probability. A missing or empty row, or a draw past the row's total,
// falls back to Clear.
func (m Matrix) Next(current Condition, r float64) Condition {
	row := m[current]
	if len(row) == 0 {
		return Clear
	}
	cumulative := 0.0
	for _, t := range row {
		cumulative += t.Probability
		if r < cumulative {
			return t.To
		}
	}
	return Clear
}

// Config controls burst and transition timing.
type Config struct {
	BurstMin          float64   // Seconds, inclusive lower bound of a burst
	BurstMax          float64   // Seconds, upper bound of a burst
	TransitionSeconds float64   // Cross-fade length
	Initial           Condition // Condition at session start
	Transitions       Matrix    // nil uses DefaultTransitions
}

// DefaultConfig returns 45–60 second bursts with a 4 second cross-fade.
func DefaultConfig() Config {
	return Config{
		BurstMin:          45,
		BurstMax:          60,
		TransitionSeconds: 4,
		Initial:           Clear,
	}
}

// Engine is the weather state machine. It is advanced once per tick and
// read by couriers; nothing else mutates it.
type Engine struct {
	cfg Config
	rng *rand.Rand

	current   Condition
	intensity float64

	previous          Condition
	previousIntensity float64
	transitioning     bool
	progress          float64 // 0 at transition start, 1 when complete

	timeInBurst   float64
	burstDuration float64
}

// NewEngine creates a weather engine starting in cfg.Initial.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if cfg.Transitions == nil {
		cfg.Transitions = DefaultTransitions()
	}
	if cfg.BurstMax < cfg.BurstMin {
		cfg.BurstMax = cfg.BurstMin
	}
	if cfg.Initial == "" {
		cfg.Initial = Clear
	}
	e := &Engine{cfg: cfg, rng: rng}
	e.Reset()
	return e
}

// Reset returns the engine to its initial condition for a new game.
func (e *Engine) Reset() {
	e.current = e.cfg.Initial
	e.intensity = 0.5
	e.previous = ""
	e.previousIntensity = 0
	e.transitioning = false
	e.progress = 0
	e.timeInBurst = 0
	e.burstDuration = e.drawBurst()
}

// Advance moves the weather forward by dt seconds.
func (e *Engine) Advance(dt float64) {
	if dt <= 0 {
		return
	}
	e.timeInBurst += dt

	if e.transitioning {
		if e.cfg.TransitionSeconds <= 0 {
			e.progress = 1
		} else {
			e.progress += dt / e.cfg.TransitionSeconds
		}
		if e.progress >= 1 {
			e.progress = 1
			e.transitioning = false
			e.previous = ""
			e.previousIntensity = 0
		}
	}

	if e.timeInBurst >= e.burstDuration {
		next := e.cfg.Transitions.Next(e.current, e.rng.Float64())
		e.begin(next, 0.1+e.rng.Float64()*0.9)
	}
}

// ForceCondition immediately starts a transition to c. A nil intensity is
// drawn uniformly from [0.1, 1.0].
func (e *Engine) ForceCondition(c Condition, intensity *float64) {
	level := 0.1 + e.rng.Float64()*0.9
	if intensity != nil {
		level = clamp(*intensity, 0, 1)
	}
	e.begin(c, level)
	slog.Info("weather forced", "condition", c, "intensity", level)
}

func (e *Engine) begin(next Condition, intensity float64) {
	e.previous = e.current
	e.previousIntensity = e.intensity
	e.current = next
	e.intensity = intensity
	e.transitioning = true
	e.progress = 0
	e.timeInBurst = 0
	e.burstDuration = e.drawBurst()
	slog.Debug("weather transition", "from", e.previous, "to", next, "intensity", intensity, "burst", e.burstDuration)
}

func (e *Engine) drawBurst() float64 {
	span := e.cfg.BurstMax - e.cfg.BurstMin
	if span <= 0 {
		return e.cfg.BurstMin
	}
	return e.cfg.BurstMin + e.rng.Float64()*span
}

// EffectiveSpeedMultiplier interpolates the speed multiplier across an
// in-flight transition.
func (e *Engine) EffectiveSpeedMultiplier() float64 {
	cur := ProfileFor(e.current).SpeedMultiplier
	if !e.transitioning {
		return cur
	}
	prev := ProfileFor(e.previous).SpeedMultiplier
	return lerp(prev, cur, e.progress)
}

// EffectiveStaminaDrain interpolates the per-cell stamina drain across an
// in-flight transition.
func (e *Engine) EffectiveStaminaDrain() float64 {
	cur := ProfileFor(e.current).StaminaDrain
	if !e.transitioning {
		return cur
	}
	prev := ProfileFor(e.previous).StaminaDrain
	return lerp(prev, cur, e.progress)
}

// ClimateRisk is a coarse flat penalty: 1 while anything worse than clouds
// is active, 0 otherwise.
func (e *Engine) ClimateRisk() float64 {
	switch e.current {
	case Clear, Clouds:
		return 0
	default:
		return 1
	}
}

// Current returns the active condition and its intensity.
func (e *Engine) Current() (Condition, float64) {
	return e.current, e.intensity
}

// Snapshot is a read-only view of the weather state.
type Snapshot struct {
	Condition         Condition `json:"condition"`
	Intensity         float64   `json:"intensity"`
	Previous          Condition `json:"previous,omitempty"`
	PreviousIntensity float64   `json:"previous_intensity,omitempty"`
	Transitioning     bool      `json:"transitioning"`
	Progress          float64   `json:"progress"`
	TimeInBurst       float64   `json:"time_in_burst"`
	BurstDuration     float64   `json:"burst_duration"`
	SpeedMultiplier   float64   `json:"speed_multiplier"`
	StaminaDrain      float64   `json:"stamina_drain"`
	Sky               Color     `json:"sky"`
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Condition:         e.current,
		Intensity:         e.intensity,
		Previous:          e.previous,
		PreviousIntensity: e.previousIntensity,
		Transitioning:     e.transitioning,
		Progress:          e.progress,
		TimeInBurst:       e.timeInBurst,
		BurstDuration:     e.burstDuration,
		SpeedMultiplier:   e.EffectiveSpeedMultiplier(),
		StaminaDrain:      e.EffectiveStaminaDrain(),
		Sky:               e.SkyColor(),
	}
}

// SkyColor blends the sky colour across a transition.
func (e *Engine) SkyColor() Color {
	cur := ProfileFor(e.current).Sky
	if !e.transitioning {
		return cur
	}
	prev := ProfileFor(e.previous).Sky
	var out Color
	for i := range out {
		out[i] = uint8(lerp(float64(prev[i]), float64(cur[i]), e.progress) + 0.5)
	}
	return out
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
