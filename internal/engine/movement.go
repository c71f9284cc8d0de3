package engine

import (
	"math"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/city"
)

// setWaypoint turns a discrete intent into the next cell to walk into. A
// blocked diagonal falls back to whichever axis is open, so couriers slide
// along walls instead of stopping dead.
func (s *Simulation) setWaypoint(c *agents.Courier, intent agents.Intent) {
	if intent.Zero() {
		c.Waypoint = nil
		return
	}
	from := c.Cell()
	for _, step := range []agents.Intent{intent, {DX: intent.DX}, {DY: intent.DY}} {
		if step.Zero() {
			continue
		}
		next := from.Add(step.DX, step.DY)
		if s.Grid.IsWalkable(next.X, next.Y) {
			c.Waypoint = &next
			c.LastStep = step
			c.Heading = math.Atan2(float64(step.DY), float64(step.DX))
			return
		}
	}
	c.Waypoint = nil
}

// move walks the courier toward its waypoint at its current speed, or lets
// it recover when it stands still.
func (s *Simulation) move(c *agents.Courier, dt float64) {
	wp := c.Waypoint
	if wp == nil {
		c.Recover(dt)
		return
	}
	speed := c.Speed(s.Grid.SurfaceWeight(wp.X, wp.Y))
	if speed <= 0 {
		c.Waypoint = nil
		c.Recover(dt)
		return
	}

	dx := float64(wp.X) - c.X
	dy := float64(wp.Y) - c.Y
	dist := math.Hypot(dx, dy)
	budget := speed * dt
	nx, ny := float64(wp.X), float64(wp.Y)
	if budget < dist {
		nx = c.X + dx/dist*budget
		ny = c.Y + dy/dist*budget
	}

	moved := s.slide(c, nx, ny)
	c.SpendStamina(moved)

	switch {
	case moved == 0, c.Exhausted:
		c.Waypoint = nil
	case c.X == float64(wp.X) && c.Y == float64(wp.Y):
		c.Waypoint = nil
	}
}

// slide applies the X and Y components independently, rejecting each one
// that would put the courier in a blocked cell. It returns the distance
// covered.
func (s *Simulation) slide(c *agents.Courier, nx, ny float64) float64 {
	moved := 0.0
	if nx != c.X && s.open(nx, c.Y) {
		moved += math.Abs(nx - c.X)
		c.X = nx
	}
	if ny != c.Y && s.open(c.X, ny) {
		moved += math.Abs(ny - c.Y)
		c.Y = ny
	}
	return moved
}

func (s *Simulation) open(x, y float64) bool {
	cell := city.Cell{X: int(math.Floor(x + 0.5)), Y: int(math.Floor(y + 0.5))}
	return s.Grid.IsWalkable(cell.X, cell.Y)
}
