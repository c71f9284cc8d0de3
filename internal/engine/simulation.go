// Simulation ties together the city, weather, order pool and couriers and
// runs them each tick.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/weather"
)

// ErrNoPlayer is returned by player controls when the session has no human
// courier.
var ErrNoPlayer = errors.New("no player courier")

// Outcome is the state of a session.
type Outcome uint8

const (
	OutcomeRunning Outcome = iota
	OutcomeWon
	OutcomeLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	default:
		return "running"
	}
}

// Config holds session rules.
type Config struct {
	DecisionInterval float64         // Seconds between AI decisions
	PickupRadius     float64         // Cells
	SessionLength    float64         // Seconds; 0 = no limit
	GoalEarnings     decimal.Decimal // Zero = no goal
	EventLimit       int             // Recent events kept in memory
}

// DefaultConfig returns the stock session rules.
func DefaultConfig() Config {
	return Config{
		DecisionInterval: 0.2,
		PickupRadius:     1.0,
		SessionLength:    600,
		GoalEarnings:     decimal.NewFromInt(500),
		EventLimit:       500,
	}
}

// Setup fills a fresh pool and returns the couriers for a new game. The
// courier slice order is the decision order within a tick.
type Setup func(pool *orders.Pool) ([]*agents.Courier, error)

// OrderOutcome records how an order left play.
type OrderOutcome struct {
	OrderID string          `json:"order_id"`
	Courier string          `json:"courier,omitempty"`
	Status  orders.Status   `json:"status"`
	Payout  decimal.Decimal `json:"payout"`
	At      float64         `json:"at"`
}

// Simulation holds the complete session state. All exported methods are
// safe to call from the API goroutine while the engine ticks.
type Simulation struct {
	mu sync.RWMutex

	SessionID string
	Grid      city.Grid
	Weather   *weather.Engine // nil disables weather
	Pool      *orders.Pool
	Couriers  []*agents.Courier
	Player    *agents.Courier
	Config    Config

	Clock    float64 // Sim-seconds since the session started
	LastTick uint64

	events    []Event
	unflushed []Event
	outcomes  []OrderOutcome
	outcome   Outcome

	playerIntent agents.Intent
	setup        Setup
}

// NewSimulation creates a Simulation and runs setup for the first game.
func NewSimulation(cfg Config, grid city.Grid, w *weather.Engine, pool *orders.Pool, setup Setup) (*Simulation, error) {
	s := &Simulation{
		Grid:    grid,
		Weather: w,
		Pool:    pool,
		Config:  cfg,
		setup:   setup,
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulation) start() error {
	couriers, err := s.setup(s.Pool)
	if err != nil {
		return fmt.Errorf("setting up session: %w", err)
	}
	s.SessionID = uuid.NewString()
	s.Couriers = couriers
	s.Player = nil
	for _, c := range couriers {
		if !c.IsAI() {
			s.Player = c
			break
		}
	}
	return nil
}

// Reset starts a new game: weather and pool are reset, couriers respawned.
// Cancelled order ids survive the reset.
func (s *Simulation) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Weather != nil {
		s.Weather.Reset()
	}
	s.Pool.Reset()
	s.Clock = 0
	s.LastTick = 0
	s.events = nil
	s.unflushed = nil
	s.outcomes = nil
	s.outcome = OutcomeRunning
	s.playerIntent = agents.Intent{}
	if err := s.start(); err != nil {
		return err
	}
	slog.Info("session reset", "session", s.SessionID, "couriers", len(s.Couriers), "pending", s.Pool.Len())
	return nil
}

// TickFrame advances the session by dt sim-seconds: weather, pool release
// and expiry, decisions in courier order, movement, then order resolution.
func (s *Simulation) TickFrame(tick uint64, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != OutcomeRunning {
		return
	}
	s.LastTick = tick
	s.Clock += dt
	now := s.Clock

	s.advanceWeather(dt)
	s.advancePool(now)

	world := s.world(now)
	speed, drain, _, _ := world.WeatherFactors()
	for _, c := range s.Couriers {
		c.ApplyWeatherEffects(speed, drain)
		if c.IsAI() {
			s.decide(c, world, dt)
		} else if c.Waypoint == nil && !c.Exhausted {
			s.setWaypoint(c, s.playerIntent)
		}
	}

	for _, c := range s.Couriers {
		s.move(c, dt)
	}

	for _, c := range s.Couriers {
		s.resolveOrders(c, now)
	}

	s.checkOutcome()
}

func (s *Simulation) world(now float64) *agents.World {
	w := &agents.World{Grid: s.Grid, Pool: s.Pool, Now: now}
	if s.Weather != nil {
		w.Weather = s.Weather
	}
	return w
}

func (s *Simulation) advanceWeather(dt float64) {
	if s.Weather == nil {
		return
	}
	before, _ := s.Weather.Current()
	s.Weather.Advance(dt)
	after, intensity := s.Weather.Current()
	if after != before {
		s.emit(Event{
			Category:    CategoryWeather,
			Description: fmt.Sprintf("Weather turns to %s", after),
			Meta:        map[string]any{"from": string(before), "to": string(after), "intensity": intensity},
		})
	}
}

func (s *Simulation) advancePool(now float64) {
	for _, o := range s.Pool.ReleaseDue(now) {
		s.emit(Event{
			Category:    CategoryOrder,
			Order:       o.ID,
			Description: fmt.Sprintf("Order %s released (%s)", o.ID, humanize.Commaf(o.Payout)),
		})
	}
	for _, o := range s.Pool.ExpirePending(now) {
		s.outcomes = append(s.outcomes, OrderOutcome{OrderID: o.ID, Status: o.Status, Payout: decimal.Zero, At: now})
		s.emit(Event{
			Category:    CategoryOrder,
			Order:       o.ID,
			Description: fmt.Sprintf("Order %s withdrawn unclaimed", o.ID),
		})
	}
}

// decide runs the courier's strategy once its cooldown has elapsed and it
// has reached its current waypoint.
func (s *Simulation) decide(c *agents.Courier, world *agents.World, dt float64) {
	c.DecisionCooldown -= dt
	if c.DecisionCooldown > 0 || c.Waypoint != nil {
		return
	}
	c.DecisionCooldown = s.Config.DecisionInterval

	before := heldIDs(c)
	intent := c.Strategy.Decide(c, world)
	for _, o := range c.Inventory.Orders() {
		if !before[o.ID] {
			s.emit(Event{
				Category:    CategoryOrder,
				Courier:     c.Name,
				Order:       o.ID,
				Description: fmt.Sprintf("%s accepts order %s", c.Name, o.ID),
			})
		}
	}
	slog.Debug("decision", "courier", c.Name, "mode", c.Mode, "intent", intent, "stamina", c.Stamina)
	s.setWaypoint(c, intent)
}

func heldIDs(c *agents.Courier) map[string]bool {
	ids := make(map[string]bool, c.Inventory.Len())
	for _, o := range c.Inventory.Orders() {
		ids[o.ID] = true
	}
	return ids
}

// resolveOrders updates timers, then handles expiry, pickup and delivery for
// everything the courier holds.
func (s *Simulation) resolveOrders(c *agents.Courier, now float64) {
	for _, o := range c.Inventory.Orders() {
		o.Update(now)
		if o.IsExpired(now) {
			if c.ExpireOrder(o) {
				s.outcomes = append(s.outcomes, OrderOutcome{OrderID: o.ID, Courier: c.Name, Status: o.Status, Payout: decimal.Zero, At: now})
				s.emit(Event{
					Category:    CategoryOrder,
					Courier:     c.Name,
					Order:       o.ID,
					Description: fmt.Sprintf("Order %s expired on %s", o.ID, c.Name),
				})
			}
			continue
		}

		switch o.Status {
		case orders.StatusInProgress:
			if !s.within(c, o.Pickup) {
				continue
			}
			if err := c.PickUp(o, now); err != nil {
				slog.Debug("pickup refused", "courier", c.Name, "order", o.ID, "error", err)
				continue
			}
			s.emit(Event{
				Category:    CategoryOrder,
				Courier:     c.Name,
				Order:       o.ID,
				Description: fmt.Sprintf("%s picks up order %s", c.Name, o.ID),
			})
		case orders.StatusPickedUp:
			if !s.within(c, o.Dropoff) {
				continue
			}
			pay, err := c.Deliver(o, now)
			if err != nil {
				slog.Warn("delivery failed", "courier", c.Name, "order", o.ID, "error", err)
				continue
			}
			s.outcomes = append(s.outcomes, OrderOutcome{OrderID: o.ID, Courier: c.Name, Status: o.Status, Payout: pay, At: now})
			s.emit(Event{
				Category:    CategoryDelivery,
				Courier:     c.Name,
				Order:       o.ID,
				Description: fmt.Sprintf("%s delivers order %s for %s", c.Name, o.ID, pay.StringFixed(2)),
				Meta:        map[string]any{"payout": pay.StringFixed(2), "reputation": c.Reputation},
			})
		}
	}
}

func (s *Simulation) within(c *agents.Courier, cell city.Cell) bool {
	dx := c.X - float64(cell.X)
	dy := c.Y - float64(cell.Y)
	return dx*dx+dy*dy <= s.Config.PickupRadius*s.Config.PickupRadius
}

func (s *Simulation) checkOutcome() {
	p := s.Player
	if p == nil {
		if s.Config.SessionLength > 0 && s.Clock >= s.Config.SessionLength {
			s.finish(OutcomeWon, "time up")
		}
		return
	}
	switch {
	case p.Defeated():
		s.finish(OutcomeLost, "reputation collapsed")
	case !s.Config.GoalEarnings.IsZero() && p.Earnings.GreaterThanOrEqual(s.Config.GoalEarnings):
		s.finish(OutcomeWon, "earnings goal reached")
	case s.Config.SessionLength > 0 && s.Clock >= s.Config.SessionLength:
		if s.Config.GoalEarnings.IsZero() && s.rankOf(p) == 1 {
			s.finish(OutcomeWon, "time up, top earner")
		} else {
			s.finish(OutcomeLost, "time up")
		}
	}
}

func (s *Simulation) finish(o Outcome, reason string) {
	s.outcome = o
	s.emit(Event{Category: CategorySession, Description: fmt.Sprintf("Session %s: %s", o, reason)})
	slog.Info("session finished", "session", s.SessionID, "outcome", o.String(), "reason", reason, "clock", SimTime(s.Clock))
}

// Outcome reports whether the session is still running.
func (s *Simulation) Outcome() Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// Finished reports whether the session has ended.
func (s *Simulation) Finished() bool {
	return s.Outcome() != OutcomeRunning
}

// ranked returns the couriers by descending earnings, ties by id.
func (s *Simulation) ranked() []*agents.Courier {
	out := make([]*agents.Courier, len(s.Couriers))
	copy(out, s.Couriers)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Earnings.Cmp(out[j].Earnings); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Simulation) rankOf(c *agents.Courier) int {
	for i, r := range s.ranked() {
		if r == c {
			return i + 1
		}
	}
	return 0
}

// ForceWeatherChange switches the weather immediately. A nil intensity is
// drawn at random.
func (s *Simulation) ForceWeatherChange(name string, intensity *float64) error {
	cond, ok := weather.Parse(name)
	if !ok {
		return fmt.Errorf("unknown weather condition %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Weather == nil {
		return errors.New("weather is disabled")
	}
	before, _ := s.Weather.Current()
	s.Weather.ForceCondition(cond, intensity)
	_, level := s.Weather.Current()
	s.emit(Event{
		Category:    CategoryWeather,
		Description: fmt.Sprintf("Weather forced to %s", cond),
		Meta:        map[string]any{"from": string(before), "to": string(cond), "intensity": level, "forced": true},
	})
	return nil
}

// Report logs a periodic session summary.
func (s *Simulation) Report(tick uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cond := "none"
	if s.Weather != nil {
		c, _ := s.Weather.Current()
		cond = string(c)
	}
	args := []any{
		"tick", humanize.Comma(int64(tick)),
		"clock", SimTime(s.Clock),
		"weather", cond,
		"pending", s.Pool.Len(),
		"queued", s.Pool.Queued(),
	}
	for _, c := range s.ranked() {
		earned, _ := c.Earnings.Float64()
		args = append(args, c.Name, fmt.Sprintf("$%s rep=%.0f stam=%.0f", humanize.Commaf(earned), c.Reputation, c.Stamina))
	}
	slog.Info("session report", args...)
}
