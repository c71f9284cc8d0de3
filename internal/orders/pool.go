package orders

import (
	"fmt"
	"sort"
)

// Pool is the single shared list of acceptable orders, plus the
// time-gated release queue and the set of cancelled ids that must never
// come back.
//
// The simulation is single-threaded: couriers decide one after another
// within a tick, so the first successful Accept wins a contested order.
// Callers must read Pending() fresh in every decision rather than keeping
// a copy across calls.
type Pool struct {
	PendingTTL float64 // Seconds a released order stays pending without a deadline; 0 = forever

	pending   []*Order
	queue     []queued
	cancelled map[string]struct{}
}

type queued struct {
	unlockAt float64
	order    *Order
}

// NewPool creates an empty pool.
func NewPool(pendingTTL float64) *Pool {
	return &Pool{
		PendingTTL: pendingTTL,
		cancelled:  make(map[string]struct{}),
	}
}

// Reset empties the pool for a new game. Cancelled ids are kept so a
// reloaded feed cannot resurrect them.
func (p *Pool) Reset() {
	p.pending = nil
	p.queue = nil
}

func (p *Pool) stamp(o *Order, now float64) {
	o.ReleaseAt = now
	switch {
	case o.Deadline != nil:
		o.ExpiresAt = *o.Deadline
	case p.PendingTTL > 0:
		o.ExpiresAt = now + p.PendingTTL
	default:
		o.ExpiresAt = 0
	}
}

// Add makes an order visible immediately. Cancelled or duplicate ids are
// ignored and reported as false.
func (p *Pool) Add(o *Order, now float64) bool {
	if o == nil || p.IsCancelled(o.ID) || p.Get(o.ID) != nil {
		return false
	}
	p.stamp(o, now)
	p.pending = append(p.pending, o)
	return true
}

// Schedule queues an order to become visible at unlockAt.
func (p *Pool) Schedule(o *Order, unlockAt float64) {
	if o == nil || p.IsCancelled(o.ID) {
		return
	}
	i := sort.Search(len(p.queue), func(i int) bool { return p.queue[i].unlockAt > unlockAt })
	p.queue = append(p.queue, queued{})
	copy(p.queue[i+1:], p.queue[i:])
	p.queue[i] = queued{unlockAt: unlockAt, order: o}
}

// ReleaseDue moves every queued order with unlock time <= now into the
// pending list in ascending unlock order, skipping cancelled ids. It returns
// the orders released.
func (p *Pool) ReleaseDue(now float64) []*Order {
	n := 0
	for n < len(p.queue) && p.queue[n].unlockAt <= now {
		n++
	}
	if n == 0 {
		return nil
	}
	var released []*Order
	for _, q := range p.queue[:n] {
		if p.IsCancelled(q.order.ID) || p.Get(q.order.ID) != nil {
			continue
		}
		p.stamp(q.order, q.unlockAt)
		p.pending = append(p.pending, q.order)
		released = append(released, q.order)
	}
	p.queue = append(p.queue[:0], p.queue[n:]...)
	return released
}

// Pending returns a fresh copy of the visible orders in pool order.
func (p *Pool) Pending() []*Order {
	out := make([]*Order, len(p.pending))
	copy(out, p.pending)
	return out
}

// Len returns the number of visible orders.
func (p *Pool) Len() int { return len(p.pending) }

// Queued returns how many orders wait in the release queue.
func (p *Pool) Queued() int { return len(p.queue) }

// NextUnlock returns the earliest queued unlock time.
func (p *Pool) NextUnlock() (float64, bool) {
	if len(p.queue) == 0 {
		return 0, false
	}
	return p.queue[0].unlockAt, true
}

// Get returns a pending order by id, or nil.
func (p *Pool) Get(id string) *Order {
	for _, o := range p.pending {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Take removes an order from the pending list if it is still there. This
// is the pool's only claim primitive; a false result means someone else
// got it first (or it never existed).
func (p *Pool) Take(id string) (*Order, bool) {
	for i, o := range p.pending {
		if o.ID == id {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return o, true
		}
	}
	return nil, false
}

// Accept runs the acceptance protocol for one consumer: capacity check,
// remove-if-present, then start the order's timer. Nothing is mutated when
// it fails.
func (p *Pool) Accept(inv *Inventory, id string, now float64) (*Order, error) {
	o := p.Get(id)
	if o == nil {
		return nil, fmt.Errorf("accept %s: %w", id, ErrNotPending)
	}
	if !inv.CanCarry(o.Weight) {
		return nil, fmt.Errorf("accept %s: %w", id, ErrOverCapacity)
	}
	if _, ok := p.Take(id); !ok {
		return nil, fmt.Errorf("accept %s: %w", id, ErrNotPending)
	}
	if !inv.Add(o) {
		p.pending = append(p.pending, o)
		return nil, fmt.Errorf("accept %s: %w", id, ErrOverCapacity)
	}
	if err := o.Accept(now); err != nil {
		inv.Remove(id)
		p.pending = append(p.pending, o)
		return nil, fmt.Errorf("accept %s: %w", id, err)
	}
	return o, nil
}

// ExpirePending removes and expires pending orders whose pool expiry has
// passed. No courier held them, so no reputation is touched.
func (p *Pool) ExpirePending(now float64) []*Order {
	var expired []*Order
	kept := p.pending[:0]
	for _, o := range p.pending {
		if o.IsExpired(now) {
			_ = o.Expire()
			expired = append(expired, o)
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(p.pending); i++ {
		p.pending[i] = nil
	}
	p.pending = kept
	return expired
}

// MarkCancelled records an id as cancelled and drops it from the pending
// list and release queue.
func (p *Pool) MarkCancelled(id string) {
	p.cancelled[id] = struct{}{}
	p.Take(id)
	kept := p.queue[:0]
	for _, q := range p.queue {
		if q.order.ID != id {
			kept = append(kept, q)
		}
	}
	p.queue = kept
}

// IsCancelled reports whether id was ever cancelled.
func (p *Pool) IsCancelled(id string) bool {
	_, ok := p.cancelled[id]
	return ok
}

// CancelledIDs returns the cancelled set in sorted order.
func (p *Pool) CancelledIDs() []string {
	ids := make([]string, 0, len(p.cancelled))
	for id := range p.cancelled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
