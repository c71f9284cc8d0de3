// Package engine provides the fixed-step simulation loop and the courier
// simulation it drives.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickRate is the number of simulation ticks per sim-second.
const DefaultTickRate = 20

// Engine drives the simulation forward in fixed steps.
type Engine struct {
	Tick     uint64 // Current tick counter (monotonic, never resets)
	TickRate int    // Ticks per sim-second
	Headless bool   // Run as fast as possible, ignoring Speed pacing

	// Callbacks for each tick layer, populated during setup.
	OnTick   func(tick uint64, dt float64) // Every tick
	OnSecond func(tick uint64)             // Every TickRate ticks
	OnMinute func(tick uint64)             // Every 60 sim-seconds

	mu      sync.Mutex
	speed   float64 // 1.0 = real-time, 0 = paused
	running atomic.Bool
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		TickRate: DefaultTickRate,
		speed:    1.0,
	}
}

// Speed returns the pacing multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the pacing multiplier; 0 pauses.
func (e *Engine) SetSpeed(speed float64) error {
	if speed < 0 || speed > 100 {
		return fmt.Errorf("speed %.2f out of range [0, 100]", speed)
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	return nil
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Dt is the sim-seconds covered by one tick.
func (e *Engine) Dt() float64 {
	return 1 / float64(e.TickRate)
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "tick_rate", e.TickRate)

	interval := time.Second / time.Duration(e.TickRate)
	for e.running.Load() {
		if e.Headless {
			e.Step()
			continue
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused; sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, e.Dt())
	}

	perSecond := uint64(e.TickRate)
	if e.Tick%perSecond == 0 && e.OnSecond != nil {
		e.OnSecond(e.Tick)
	}

	if e.Tick%(perSecond*60) == 0 && e.OnMinute != nil {
		e.OnMinute(e.Tick)
	}
}

// SimTime formats sim-seconds as a clock string.
func SimTime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
