package weather

import (
	"math"
	"math/rand"
	"testing"
)

func newTestEngine(seed int64) *Engine {
	return NewEngine(DefaultConfig(), rand.New(rand.NewSource(seed)))
}

func TestTransitionRowsAreStochastic(t *testing.T) {
	m := DefaultTransitions()
	for _, c := range Conditions {
		sum := m.RowSum(c)
		if sum > 1+1e-9 {
			t.Fatalf("row %s sums to %v, want <= 1", c, sum)
		}
		if sum < 1-1e-9 {
			t.Fatalf("row %s sums to %v, want 1", c, sum)
		}
		for _, tr := range m[c] {
			if _, ok := Profiles[tr.To]; !ok {
				t.Fatalf("row %s points at unknown condition %q", c, tr.To)
			}
		}
	}
}

func TestNextFallsBackToClear(t *testing.T) {
	m := Matrix{Storm: nil}
	if got := m.Next(Storm, 0.3); got != Clear {
		t.Fatalf("Next(empty row) = %s, want clear", got)
	}
	if got := m.Next("hail", 0.3); got != Clear {
		t.Fatalf("Next(missing row) = %s, want clear", got)
	}
	short := Matrix{Rain: {{Storm, 0.5}}}
	if got := short.Next(Rain, 0.9); got != Clear {
		t.Fatalf("Next(past row total) = %s, want clear", got)
	}
	if got := short.Next(Rain, 0.2); got != Storm {
		t.Fatalf("Next(0.2) = %s, want storm", got)
	}
}

func TestForceConditionDrawsIntensity(t *testing.T) {
	e := newTestEngine(7)
	for i := 0; i < 200; i++ {
		e.ForceCondition(Rain, nil)
		_, intensity := e.Current()
		if intensity < 0.1 || intensity > 1.0 {
			t.Fatalf("intensity = %v, want in [0.1, 1.0]", intensity)
		}
	}
}

func TestInterpolationEndpointsAndMidpoint(t *testing.T) {
	e := newTestEngine(1)
	level := 0.8
	e.ForceCondition(Storm, &level)

	// progress 0: previous condition's value.
	if got := e.EffectiveSpeedMultiplier(); got != 1.0 {
		t.Fatalf("speed at progress 0 = %v, want 1.0", got)
	}

	// Half of the 4 second cross-fade.
	e.Advance(2)
	if got := e.EffectiveSpeedMultiplier(); math.Abs(got-0.875) > 1e-9 {
		t.Fatalf("speed at progress 0.5 = %v, want 0.875", got)
	}
	if got := e.EffectiveStaminaDrain(); math.Abs(got-0.15) > 1e-9 {
		t.Fatalf("drain at progress 0.5 = %v, want 0.15", got)
	}

	e.Advance(2)
	if got := e.EffectiveSpeedMultiplier(); got != 0.75 {
		t.Fatalf("speed at progress 1 = %v, want 0.75", got)
	}
	snap := e.Snapshot()
	if snap.Transitioning || snap.Previous != "" {
		t.Fatalf("previous snapshot should be retired, got %+v", snap)
	}
}

func TestInterpolationIsMonotonic(t *testing.T) {
	e := newTestEngine(3)
	e.ForceCondition(Storm, nil)
	last := e.EffectiveSpeedMultiplier()
	for i := 0; i < 40; i++ {
		e.Advance(0.1)
		got := e.EffectiveSpeedMultiplier()
		if got > last+1e-12 {
			t.Fatalf("speed rose from %v to %v during clear->storm fade", last, got)
		}
		last = got
	}
}

func TestAdvanceStartsNewBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BurstMin, cfg.BurstMax = 10, 10
	cfg.Transitions = Matrix{Clear: {{Fog, 1.0}}, Fog: {{Clear, 1.0}}}
	e := NewEngine(cfg, rand.New(rand.NewSource(5)))

	e.Advance(9.9)
	if c, _ := e.Current(); c != Clear {
		t.Fatalf("condition before burst end = %s", c)
	}
	e.Advance(0.2)
	c, intensity := e.Current()
	if c != Fog {
		t.Fatalf("condition after burst = %s, want fog", c)
	}
	if intensity < 0.1 || intensity > 1.0 {
		t.Fatalf("intensity = %v", intensity)
	}
	snap := e.Snapshot()
	if !snap.Transitioning || snap.Progress != 0 || snap.BurstDuration != 10 {
		t.Fatalf("unexpected snapshot after burst: %+v", snap)
	}
}

func TestUnknownConditionIsNeutral(t *testing.T) {
	p := ProfileFor("hail")
	if p.SpeedMultiplier != 1.0 || p.StaminaDrain != 0.0 || p.Sky != defaultSky {
		t.Fatalf("unknown profile = %+v", p)
	}

	e := newTestEngine(2)
	e.ForceCondition("hail", nil)
	e.Advance(10)
	if got := e.EffectiveSpeedMultiplier(); got != 1.0 {
		t.Fatalf("unknown condition speed = %v", got)
	}
}

func TestParse(t *testing.T) {
	if c, ok := Parse(" Rain_Light "); !ok || c != RainLight {
		t.Fatalf("Parse = %v,%v", c, ok)
	}
	if _, ok := Parse("sleet"); ok {
		t.Fatalf("Parse(sleet) should fail")
	}
}
