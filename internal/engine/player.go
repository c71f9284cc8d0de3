package engine

import (
	"fmt"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/orders"
)

// SetPlayerIntent sets the direction the player keeps walking in until it
// is changed. Components are clamped to {-1, 0, 1}.
func (s *Simulation) SetPlayerIntent(dx, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Player == nil {
		return ErrNoPlayer
	}
	s.playerIntent = agents.Intent{DX: sign(dx), DY: sign(dy)}
	return nil
}

// PlayerAccept takes a pending order for the player, under the same rules
// as every AI courier.
func (s *Simulation) PlayerAccept(id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Player == nil {
		return nil, ErrNoPlayer
	}
	o, err := s.Pool.Accept(s.Player.Inventory, id, s.Clock)
	if err != nil {
		return nil, err
	}
	s.emit(Event{
		Category:    CategoryPlayer,
		Courier:     s.Player.Name,
		Order:       id,
		Description: fmt.Sprintf("%s accepts order %s", s.Player.Name, id),
	})
	return o, nil
}

// PlayerCancel abandons a held order. The id is remembered so the order
// never comes back on reload.
func (s *Simulation) PlayerCancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Player == nil {
		return ErrNoPlayer
	}
	o, err := s.Player.CancelOrder(id)
	if err != nil {
		return err
	}
	s.Pool.MarkCancelled(id)
	s.outcomes = append(s.outcomes, OrderOutcome{OrderID: id, Courier: s.Player.Name, Status: o.Status, At: s.Clock})
	s.emit(Event{
		Category:    CategoryPlayer,
		Courier:     s.Player.Name,
		Order:       id,
		Description: fmt.Sprintf("%s cancels order %s", s.Player.Name, id),
		Meta:        map[string]any{"reputation": s.Player.Reputation},
	})
	return nil
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
