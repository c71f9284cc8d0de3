// Package orders provides delivery orders, the courier inventory that holds
// them, and the shared pool they are accepted from.
//
// All times are simulation seconds since the session started.
package orders

import (
	"errors"
	"fmt"

	"github.com/talgya/courier-sim/internal/city"
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPickedUp   Status = "picked_up"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusExpired
}

// NotStarted is the sentinel for AcceptedAt and TimeRemaining before the
// order's timer starts.
const NotStarted = -1.0

var (
	ErrUnknownOrder      = errors.New("order not found")
	ErrNotPending        = errors.New("order is not in the pending pool")
	ErrOverCapacity      = errors.New("order would exceed carrying capacity")
	ErrInvalidTransition = errors.New("invalid order transition")
)

// Order is a delivery contract.
type Order struct {
	ID        string    `json:"id"`
	Pickup    city.Cell `json:"pickup"`
	Dropoff   city.Cell `json:"dropoff"`
	Payout    float64   `json:"payout"`
	Weight    float64   `json:"weight"`
	Priority  int       `json:"priority"`
	Deadline  *float64  `json:"deadline,omitempty"` // Absolute, if the feed gave one
	TimeLimit float64   `json:"time_limit"`         // Seconds from acceptance

	Status        Status  `json:"status"`
	AcceptedAt    float64 `json:"accepted_at"`
	TimeRemaining float64 `json:"time_remaining"`

	ReleaseAt   float64 `json:"release_at"`
	ExpiresAt   float64 `json:"expires_at,omitempty"` // Pending-pool expiry; 0 = never
	PickedUpAt  float64 `json:"picked_up_at,omitempty"`
	DeliveredAt float64 `json:"delivered_at,omitempty"`
}

// New creates a pending order with its timer not started.
func New(id string, pickup, dropoff city.Cell, payout, weight float64, priority int, timeLimit float64) *Order {
	return &Order{
		ID:            id,
		Pickup:        pickup,
		Dropoff:       dropoff,
		Payout:        payout,
		Weight:        weight,
		Priority:      priority,
		TimeLimit:     timeLimit,
		Status:        StatusPending,
		AcceptedAt:    NotStarted,
		TimeRemaining: NotStarted,
	}
}

// TimerStarted reports whether AcceptedAt and TimeRemaining are meaningful.
func (o *Order) TimerStarted() bool {
	return o.AcceptedAt >= 0
}

func (o *Order) transition(to Status, allowed ...Status) error {
	for _, from := range allowed {
		if o.Status == from {
			o.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, o.ID, o.Status, to)
}

// Accept starts the order's timer and marks it in progress.
func (o *Order) Accept(now float64) error {
	if err := o.transition(StatusInProgress, StatusPending); err != nil {
		return err
	}
	o.AcceptedAt = now
	o.TimeRemaining = o.TimeLimit
	return nil
}

// PickUp marks the order as carried.
func (o *Order) PickUp(now float64) error {
	if err := o.transition(StatusPickedUp, StatusInProgress, StatusPending); err != nil {
		return err
	}
	o.PickedUpAt = now
	return nil
}

// Deliver completes the order.
func (o *Order) Deliver(now float64) error {
	if err := o.transition(StatusDelivered, StatusPickedUp); err != nil {
		return err
	}
	o.DeliveredAt = now
	o.Update(now)
	return nil
}

// Cancel abandons the order from any non-terminal state.
func (o *Order) Cancel() error {
	return o.transition(StatusCancelled, StatusPending, StatusInProgress, StatusPickedUp)
}

// Expire marks the order as timed out from any non-terminal state.
func (o *Order) Expire() error {
	if err := o.transition(StatusExpired, StatusPending, StatusInProgress, StatusPickedUp); err != nil {
		return err
	}
	if o.TimerStarted() {
		o.TimeRemaining = 0
	}
	return nil
}

// Update recomputes TimeRemaining from the clock. It is a no-op before the
// timer starts.
func (o *Order) Update(now float64) {
	if !o.TimerStarted() {
		return
	}
	remaining := o.TimeLimit - (now - o.AcceptedAt)
	if remaining < 0 {
		remaining = 0
	}
	o.TimeRemaining = remaining
}

// IsExpired reports whether the order should expire at now: an accepted
// order once its time limit has run out, a pending order once its pool
// expiry has passed. Delivered orders never expire.
func (o *Order) IsExpired(now float64) bool {
	if o.Status.Terminal() {
		return o.Status == StatusExpired
	}
	if o.TimerStarted() {
		return now-o.AcceptedAt >= o.TimeLimit
	}
	return o.ExpiresAt > 0 && now >= o.ExpiresAt
}

// Elapsed returns seconds since acceptance, or 0 before acceptance.
func (o *Order) Elapsed(now float64) float64 {
	if !o.TimerStarted() {
		return 0
	}
	return now - o.AcceptedAt
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(%s %s %v->%v $%.0f w%.1f p%d)", o.ID, o.Status, o.Pickup, o.Dropoff, o.Payout, o.Weight, o.Priority)
}
