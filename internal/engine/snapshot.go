package engine

import (
	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/weather"
)

// CourierView is a read-only copy of a courier.
type CourierView struct {
	ID         agents.CourierID    `json:"id"`
	Name       string              `json:"name"`
	Difficulty string              `json:"difficulty"`
	X          float64             `json:"x"`
	Y          float64             `json:"y"`
	Heading    float64             `json:"heading"`
	Stamina    float64             `json:"stamina"`
	Reputation float64             `json:"reputation"`
	Earnings   decimal.Decimal     `json:"earnings"`
	Mode       string              `json:"mode"`
	Exhausted  bool                `json:"exhausted"`
	Orders     []orders.Order      `json:"orders"`
	Stats      agents.CourierStats `json:"stats"`
	Rank       int                 `json:"rank"`
}

// Snapshot is a consistent read-only copy of the session.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Tick      uint64            `json:"tick"`
	Clock     float64           `json:"clock"`
	Remaining float64           `json:"remaining,omitempty"`
	Outcome   string            `json:"outcome"`
	Weather   *weather.Snapshot `json:"weather,omitempty"`
	Couriers  []CourierView     `json:"couriers"`
	Pending   []orders.Order    `json:"pending"`
	Queued    int               `json:"queued"`
	Cancelled []string          `json:"cancelled"`
}

// Snapshot copies the current state for readers outside the tick loop.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID: s.SessionID,
		Tick:      s.LastTick,
		Clock:     s.Clock,
		Outcome:   s.outcome.String(),
		Queued:    s.Pool.Queued(),
		Cancelled: s.Pool.CancelledIDs(),
	}
	if s.Config.SessionLength > 0 {
		snap.Remaining = max(0, s.Config.SessionLength-s.Clock)
	}
	if s.Weather != nil {
		ws := s.Weather.Snapshot()
		snap.Weather = &ws
	}
	for _, o := range s.Pool.Pending() {
		snap.Pending = append(snap.Pending, *o)
	}

	ranks := make(map[*agents.Courier]int, len(s.Couriers))
	for i, c := range s.ranked() {
		ranks[c] = i + 1
	}
	for _, c := range s.Couriers {
		snap.Couriers = append(snap.Couriers, viewOf(c, ranks[c]))
	}
	return snap
}

func viewOf(c *agents.Courier, rank int) CourierView {
	v := CourierView{
		ID:         c.ID,
		Name:       c.Name,
		Difficulty: c.Difficulty.String(),
		X:          c.X,
		Y:          c.Y,
		Heading:    c.Heading,
		Stamina:    c.Stamina,
		Reputation: c.Reputation,
		Earnings:   c.Earnings,
		Mode:       c.Mode.String(),
		Exhausted:  c.Exhausted,
		Stats:      c.Stats,
		Rank:       rank,
	}
	for _, o := range c.Inventory.Orders() {
		v.Orders = append(v.Orders, *o)
	}
	return v
}

// Results returns the final standings, best earner first.
func (s *Simulation) Results() []CourierView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CourierView
	for i, c := range s.ranked() {
		out = append(out, viewOf(c, i+1))
	}
	return out
}
