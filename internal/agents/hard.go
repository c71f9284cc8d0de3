package agents

import (
	"math"
	"sort"

	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/pathfind"
)

const maxCachedLegs = 4096

type stopKind uint8

const (
	stopPickup stopKind = iota
	stopDropoff
)

// stop is one leg of a plan. Plans hold ids only; orders are looked up
// again on every decision.
type stop struct {
	OrderID string
	Kind    stopKind
	Cell    city.Cell
}

type leg struct {
	order *orders.Order
	kind  stopKind
}

func (l leg) cell() city.Cell {
	if l.kind == stopPickup {
		return l.order.Pickup
	}
	return l.order.Dropoff
}

// Plan is an evaluated stop sequence.
type Plan struct {
	Stops   []stop
	Value   float64 // Payout and priority, less time
	Seconds float64 // Predicted travel time
	Stamina float64 // Predicted stamina cost
	OnTime  bool    // Every dropoff lands inside its time limit
}

// OrderIDs returns the distinct order ids in stop order.
func (p *Plan) OrderIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, s := range p.Stops {
		if !seen[s.OrderID] {
			seen[s.OrderID] = true
			ids = append(ids, s.OrderID)
		}
	}
	return ids
}

type legCost struct {
	cost  float64 // Surface-weighted
	cells float64
}

// Hard plans over single orders and pairs with predicted time and stamina,
// and follows A* paths.
type Hard struct {
	nav pathfind.Navigator

	ReplanInterval float64 // Seconds between planning passes
	WeatherSwing   float64 // Speed multiplier change that forces a pass
	Candidates     int     // Nearest pending orders considered
	MaxOrders      int
	Reserve        float64 // Stamina a plan must leave untouched
	RestMargin     float64 // Added to a forced rest target
	ForcedRestGap  float64 // Minimum seconds between forced rests
	PriorityValue  float64
	TimeValue      float64 // Value lost per predicted second
	Rest           restCycle

	planned        bool
	lastPlanAt     float64
	planSpeed      float64
	plan           []stop
	queue          []string
	forcedTarget   float64
	lastForcedRest float64
	unreachable    int
	legs           map[[2]city.Cell]legCost
}

// NewHard returns a hard strategy with the stock planning parameters.
func NewHard() *Hard {
	return &Hard{
		ReplanInterval: 3,
		WeatherSwing:   0.15,
		Candidates:     6,
		MaxOrders:      2,
		Reserve:        15,
		RestMargin:     10,
		ForcedRestGap:  10,
		PriorityValue:  30,
		TimeValue:      0.5,
		Rest:           restCycle{Start: 10, Target: 60},
		lastForcedRest: math.Inf(-1),
		legs:           make(map[[2]city.Cell]legCost),
	}
}

func (h *Hard) Difficulty() Difficulty { return DifficultyHard }

// ForcedRestTarget returns the stamina a forced rest runs to, or 0.
func (h *Hard) ForcedRestTarget() float64 { return h.forcedTarget }

func (h *Hard) Decide(c *Courier, w *World) Intent {
	speed, drain, _, _ := w.WeatherFactors()
	resting := h.updateRest(c)

	if h.planDue(w.Now, speed) {
		h.replan(c, w, speed, drain)
		resting = c.Mode == ModeResting
	}
	h.acceptQueued(c, w)

	if resting {
		c.Target = c.ActiveTarget()
		return Intent{}
	}

	target := h.nextStop(c)
	c.Target = target
	if target == nil {
		c.Mode = ModeIdle
		h.nav.Reset()
		return Intent{}
	}
	c.Mode = ModeSeeking

	dx, dy, ok := h.nav.Next(w.Grid, c.Cell(), *target)
	if !ok {
		h.unreachable++
		if h.unreachable >= 3 {
			h.unreachable = 0
			h.dropPlan()
		}
		return Intent{}
	}
	h.unreachable = 0
	return Intent{DX: dx, DY: dy}
}

func (h *Hard) updateRest(c *Courier) bool {
	if h.forcedTarget > 0 {
		if c.Stamina >= h.forcedTarget && !c.Exhausted {
			h.forcedTarget = 0
			h.planned = false
			c.Mode = ModeIdle
			return false
		}
		c.Mode = ModeResting
		return true
	}
	return h.Rest.update(c)
}

func (h *Hard) planDue(now, speed float64) bool {
	if !h.planned {
		return true
	}
	return now-h.lastPlanAt >= h.ReplanInterval || math.Abs(speed-h.planSpeed) > h.WeatherSwing
}

func (h *Hard) replan(c *Courier, w *World, speed, drain float64) {
	h.planned = true
	h.lastPlanAt = w.Now
	h.planSpeed = speed
	if len(h.legs) > maxCachedLegs {
		clear(h.legs)
	}

	if c.Inventory.Len() > 0 {
		// Holding work: only re-sequence it.
		var legs []leg
		for _, o := range c.Inventory.Orders() {
			legs = append(legs, legsFor(o)...)
		}
		h.plan, h.queue = nil, nil
		if best, ok := h.best(c, w, legs, speed, drain, false); ok {
			h.plan = best.Stops
		}
		return
	}

	chosen, rejected := h.evaluate(c, w, speed, drain)
	if chosen != nil {
		h.plan = chosen.Stops
		h.queue = chosen.OrderIDs()
		return
	}
	h.plan, h.queue = nil, nil
	if rejected != nil {
		h.forceRest(c, w.Now, rejected.Stamina)
	}
}

// Evaluate returns the best viable plan over the nearest pending orders,
// singly and in pairs, and the best plan rejected for stamina alone.
func (h *Hard) Evaluate(c *Courier, w *World) (chosen, rejected *Plan) {
	speed, drain, _, _ := w.WeatherFactors()
	return h.evaluate(c, w, speed, drain)
}

func (h *Hard) evaluate(c *Courier, w *World, speed, drain float64) (chosen, rejected *Plan) {
	cands := h.candidates(c, w)
	consider := func(legs []leg) {
		p, ok := h.best(c, w, legs, speed, drain, true)
		if !ok {
			return
		}
		if c.Stamina-p.Stamina >= h.Reserve {
			if chosen == nil || p.Value > chosen.Value {
				chosen = &p
			}
			return
		}
		if p.Stamina+h.Reserve > c.Rules.MaxStamina {
			return
		}
		if rejected == nil || p.Value > rejected.Value {
			rejected = &p
		}
	}

	for i, a := range cands {
		consider(legsFor(a))
		if h.MaxOrders < 2 {
			continue
		}
		for _, b := range cands[i+1:] {
			consider(append(legsFor(a), legsFor(b)...))
		}
	}
	return chosen, rejected
}

func (h *Hard) candidates(c *Courier, w *World) []*orders.Order {
	pos := c.Cell()
	var cands []*orders.Order
	for _, o := range w.Pool.Pending() {
		if c.Inventory.CanCarry(o.Weight) {
			cands = append(cands, o)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return city.Manhattan(pos, cands[i].Pickup) < city.Manhattan(pos, cands[j].Pickup)
	})
	if len(cands) > h.Candidates {
		cands = cands[:h.Candidates]
	}
	return cands
}

// best simulates every valid ordering of legs and returns the highest-value
// one. With onTimeOnly, orderings that miss a time limit are discarded.
func (h *Hard) best(c *Courier, w *World, legs []leg, speed, drain float64, onTimeOnly bool) (Plan, bool) {
	var top Plan
	found := false
	for _, seq := range orderings(legs) {
		p, ok := h.simulate(c, w, seq, speed, drain)
		if !ok || (onTimeOnly && !p.OnTime) {
			continue
		}
		better := !found || p.Value > top.Value
		if !onTimeOnly && found && p.OnTime != top.OnTime {
			better = p.OnTime
		}
		if better {
			top, found = p, true
		}
	}
	return top, found
}

// simulate walks seq from the courier's cell and predicts time, stamina and
// value. It fails when a leg is unreachable or the load would exceed
// capacity.
func (h *Hard) simulate(c *Courier, w *World, seq []leg, speed, drain float64) (Plan, bool) {
	r := c.Rules
	p := Plan{OnTime: true}
	pos := c.Cell()
	carried := c.Inventory.CurrentWeight()

	for _, l := range seq {
		dest := l.cell()
		lc, ok := h.legCost(w.Grid, pos, dest)
		if !ok {
			return Plan{}, false
		}
		v := r.BaseSpeed * speed * r.WeightFactor(carried)
		if v <= 0 {
			return Plan{}, false
		}
		p.Seconds += lc.cost / v
		p.Stamina += lc.cells * r.DrainPerCell(carried, drain)
		pos = dest

		o := l.order
		switch l.kind {
		case stopPickup:
			carried += o.Weight
			if carried > c.Inventory.Capacity {
				return Plan{}, false
			}
		case stopDropoff:
			carried -= o.Weight
			if o.TimeLimit > 0 && o.Elapsed(w.Now)+p.Seconds > o.TimeLimit {
				p.OnTime = false
			}
			p.Value += o.Payout + float64(o.Priority)*h.PriorityValue
		}
		p.Stops = append(p.Stops, stop{OrderID: o.ID, Kind: l.kind, Cell: dest})
	}
	p.Value -= p.Seconds * h.TimeValue
	return p, true
}

func (h *Hard) legCost(g city.Grid, from, to city.Cell) (legCost, bool) {
	if from == to {
		return legCost{}, true
	}
	key := [2]city.Cell{from, to}
	if lc, ok := h.legs[key]; ok {
		return lc, lc.cells >= 0
	}
	lc := legCost{cost: -1, cells: -1}
	if path := pathfind.FindPath(g, from, to); path != nil {
		lc = legCost{cost: pathfind.PathCost(g, path), cells: float64(len(path) - 1)}
	}
	h.legs[key] = lc
	return lc, lc.cells >= 0
}

func (h *Hard) forceRest(c *Courier, now, cost float64) {
	if now-h.lastForcedRest < h.ForcedRestGap {
		return
	}
	target := math.Min(c.Rules.MaxStamina, cost+h.Reserve+h.RestMargin)
	if target <= c.Stamina {
		return
	}
	h.forcedTarget = target
	h.lastForcedRest = now
	c.Mode = ModeResting
}

func (h *Hard) acceptQueued(c *Courier, w *World) {
	if len(h.queue) == 0 {
		return
	}
	for _, id := range h.queue {
		if c.Inventory.Get(id) != nil {
			continue
		}
		if _, err := w.Pool.Accept(c.Inventory, id, w.Now); err != nil {
			// Someone else got there first.
			h.dropPlan()
			return
		}
	}
	ids := make([]string, 0, len(h.plan))
	for _, s := range h.plan {
		ids = append(ids, s.OrderID)
	}
	c.Inventory.Reorder(ids)
	h.queue = nil
}

// nextStop drops finished legs from the plan and returns the next cell to
// head for. Without a plan it falls back to the inventory's active target.
func (h *Hard) nextStop(c *Courier) *city.Cell {
	dropped := false
	for len(h.plan) > 0 {
		s := h.plan[0]
		o := c.Inventory.Get(s.OrderID)
		if o == nil || (s.Kind == stopPickup && o.Status == orders.StatusPickedUp) {
			h.plan = h.plan[1:]
			dropped = true
			continue
		}
		t := s.Cell
		return &t
	}
	if dropped {
		h.planned = false
	}
	return c.ActiveTarget()
}

func (h *Hard) dropPlan() {
	h.plan, h.queue = nil, nil
	h.planned = false
	h.nav.Reset()
}

func legsFor(o *orders.Order) []leg {
	if o.Status == orders.StatusPickedUp {
		return []leg{{order: o, kind: stopDropoff}}
	}
	return []leg{{order: o, kind: stopPickup}, {order: o, kind: stopDropoff}}
}

// orderings enumerates permutations of legs in which every dropoff follows
// its order's pickup.
func orderings(legs []leg) [][]leg {
	var out [][]leg
	used := make([]bool, len(legs))
	cur := make([]leg, 0, len(legs))

	var walk func()
	walk = func() {
		if len(cur) == len(legs) {
			out = append(out, append([]leg(nil), cur...))
			return
		}
		for i, l := range legs {
			if used[i] || !ready(legs, used, l) {
				continue
			}
			used[i] = true
			cur = append(cur, l)
			walk()
			cur = cur[:len(cur)-1]
			used[i] = false
		}
	}
	walk()
	return out
}

func ready(legs []leg, used []bool, l leg) bool {
	if l.kind != stopDropoff {
		return true
	}
	for i, other := range legs {
		if other.order == l.order && other.kind == stopPickup && !used[i] {
			return false
		}
	}
	return true
}
