package orders

import "sort"

// Inventory is the ordered list of orders a courier owns exclusively.
// Only picked-up orders count toward carrying weight: an accepted order
// reserves no capacity until it is physically collected.
type Inventory struct {
	Capacity float64 `json:"capacity"`
	orders   []*Order
}

// NewInventory creates an empty inventory.
func NewInventory(capacity float64) *Inventory {
	return &Inventory{Capacity: capacity}
}

// CurrentWeight sums the weight of picked-up orders only.
func (inv *Inventory) CurrentWeight() float64 {
	total := 0.0
	for _, o := range inv.orders {
		if o.Status == StatusPickedUp {
			total += o.Weight
		}
	}
	return total
}

// CanCarry reports whether weight more would still fit.
func (inv *Inventory) CanCarry(weight float64) bool {
	return inv.CurrentWeight()+weight <= inv.Capacity
}

// Add appends an order. It returns false when the order's weight on top of
// the picked-up load would exceed capacity, or when the order is already held.
func (inv *Inventory) Add(o *Order) bool {
	if o == nil || !inv.CanCarry(o.Weight) || inv.Get(o.ID) != nil {
		return false
	}
	inv.orders = append(inv.orders, o)
	return true
}

// Remove takes an order out of the inventory, returning nil if absent.
func (inv *Inventory) Remove(id string) *Order {
	for i, o := range inv.orders {
		if o.ID == id {
			inv.orders = append(inv.orders[:i], inv.orders[i+1:]...)
			return o
		}
	}
	return nil
}

// Get returns a held order by id, or nil.
func (inv *Inventory) Get(id string) *Order {
	for _, o := range inv.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Orders returns a copy of the held orders in inventory order.
func (inv *Inventory) Orders() []*Order {
	out := make([]*Order, len(inv.orders))
	copy(out, inv.orders)
	return out
}

// Len returns the number of held orders.
func (inv *Inventory) Len() int { return len(inv.orders) }

// Reorder moves the listed ids to the front in the given order; unknown
// ids are ignored and unlisted orders keep their relative order.
func (inv *Inventory) Reorder(ids []string) {
	front := make([]*Order, 0, len(inv.orders))
	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		if o := inv.Get(id); o != nil && !used[id] {
			front = append(front, o)
			used[id] = true
		}
	}
	for _, o := range inv.orders {
		if !used[o.ID] {
			front = append(front, o)
		}
	}
	inv.orders = front
}

// SortByPriority orders held orders by descending priority, keeping the
// existing order among equals.
func (inv *Inventory) SortByPriority() {
	sort.SliceStable(inv.orders, func(i, j int) bool {
		return inv.orders[i].Priority > inv.orders[j].Priority
	})
}

// SortByDeadline orders held orders by least time remaining first.
func (inv *Inventory) SortByDeadline() {
	sort.SliceStable(inv.orders, func(i, j int) bool {
		return inv.orders[i].TimeRemaining < inv.orders[j].TimeRemaining
	})
}
