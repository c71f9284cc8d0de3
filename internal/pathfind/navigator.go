package pathfind

import (
	"math"

	"github.com/talgya/courier-sim/internal/city"
)

// Navigator hands out one step at a time along a cached A* path.
// The path is recomputed when there is none, when the live goal differs
// from the cached destination, or when the caller is no longer where the
// last step left it (e.g. it was repositioned externally).
type Navigator struct {
	path    []city.Cell
	goal    city.Cell
	lastPos city.Cell
	hasPlan bool
	replans int
}

// RoundCell converts a continuous position to the cell whose centre is nearest.
func RoundCell(x, y float64) city.Cell {
	return city.Cell{X: int(math.Floor(x + 0.5)), Y: int(math.Floor(y + 0.5))}
}

// Reset drops the cached path.
func (n *Navigator) Reset() {
	n.path = nil
	n.hasPlan = false
}

// Replans returns how many times a path has been computed.
func (n *Navigator) Replans() int { return n.replans }

// Remaining returns the unconsumed cells of the cached path.
func (n *Navigator) Remaining() []city.Cell { return n.path }

// Next returns the unit step from pos toward goal. ok is false when the
// goal is unreachable; (0, 0, true) means the caller is already there.
func (n *Navigator) Next(g city.Grid, pos city.Cell, goal city.Cell) (dx, dy int, ok bool) {
	if pos == goal {
		n.lastPos = pos
		return 0, 0, true
	}

	stale := !n.hasPlan || n.goal != goal
	if !stale && pos != n.lastPos && (len(n.path) == 0 || pos != n.path[0]) {
		// Moved somewhere other than the step we handed out.
		stale = true
	}
	if !stale {
		// Consume the head once we stand on it.
		for len(n.path) > 0 && n.path[0] == pos {
			n.path = n.path[1:]
		}
		stale = len(n.path) == 0 || city.Manhattan(pos, n.path[0]) != 1
	}

	if stale {
		n.replans++
		n.goal = goal
		n.hasPlan = true
		n.path = FindPath(g, pos, goal)
		if len(n.path) == 0 {
			n.lastPos = pos
			return 0, 0, false
		}
		n.path = n.path[1:]
	}

	if len(n.path) == 0 {
		n.lastPos = pos
		return 0, 0, false
	}

	step := n.path[0]
	n.lastPos = pos
	return step.X - pos.X, step.Y - pos.Y, true
}
