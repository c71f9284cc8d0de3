package agents

import (
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
)

// WeatherReader is the slice of the weather engine strategies consult.
type WeatherReader interface {
	EffectiveSpeedMultiplier() float64
	EffectiveStaminaDrain() float64
	ClimateRisk() float64
}

// World is what a strategy sees on each decision. The pool is live: a
// strategy must read it fresh on every call rather than hold on to a
// pending list between calls.
type World struct {
	Grid    city.Grid
	Pool    *orders.Pool
	Weather WeatherReader // nil when weather is disabled
	Now     float64
}

// WeatherFactors returns the speed multiplier, extra drain and climate risk
// of the current weather. Without weather it reports neutral values and ok
// false.
func (w *World) WeatherFactors() (speed, drain, risk float64, ok bool) {
	if w.Weather == nil {
		return 1, 0, 0, false
	}
	return w.Weather.EffectiveSpeedMultiplier(), w.Weather.EffectiveStaminaDrain(), w.Weather.ClimateRisk(), true
}
