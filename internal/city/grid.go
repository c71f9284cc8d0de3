// Package city provides the tile grid the couriers move through.
// Cells use integer (x, y) coordinates with (0, 0) at the top-left corner.
package city

import "fmt"

// Cell is a position on the tile grid.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the cell offset by (dx, dy).
func (c Cell) Add(dx, dy int) Cell {
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// CardinalDirections defines the four neighbour offsets in a fixed order:
// up, right, down, left.
var CardinalDirections = [4]Cell{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// Neighbors returns the four adjacent cells.
func (c Cell) Neighbors() [4]Cell {
	var result [4]Cell
	for i, dir := range CardinalDirections {
		result[i] = Cell{X: c.X + dir.X, Y: c.Y + dir.Y}
	}
	return result
}

// Manhattan returns the 4-connected step distance between two cells.
func Manhattan(a, b Cell) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Grid is the query surface the pathfinder, policies and strategies read.
// Out-of-bounds queries report blocked / weight 1.0 rather than failing.
type Grid interface {
	Width() int
	Height() int
	IsWalkable(x, y int) bool
	SurfaceWeight(x, y int) float64
}

// InBounds reports whether c lies inside the grid.
func InBounds(g Grid, c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.Width() && c.Y < g.Height()
}

// Walkable is shorthand for g.IsWalkable(c.X, c.Y).
func Walkable(g Grid, c Cell) bool {
	return g.IsWalkable(c.X, c.Y)
}

// NearestWalkable returns the closest walkable cell to c by breadth-first
// search over the 4-connected grid. The search starts from c clamped into
// bounds, so coordinates outside the map snap to the nearest edge street.
func NearestWalkable(g Grid, c Cell) (Cell, bool) {
	if g.Width() <= 0 || g.Height() <= 0 {
		return Cell{}, false
	}
	start := Cell{X: clampInt(c.X, 0, g.Width()-1), Y: clampInt(c.Y, 0, g.Height()-1)}
	if Walkable(g, start) {
		return start, true
	}

	seen := map[Cell]bool{start: true}
	queue := []Cell{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range cur.Neighbors() {
			if !InBounds(g, n) || seen[n] {
				continue
			}
			if Walkable(g, n) {
				return n, true
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}
	return Cell{}, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
