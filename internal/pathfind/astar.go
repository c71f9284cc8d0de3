// Package pathfind provides A* search over the city grid and a Navigator
// that turns a cached path into one step at a time.
package pathfind

import (
	"container/heap"

	"github.com/talgya/courier-sim/internal/city"
)

// MinStepCost is the floor applied to surface weights when entering a cell.
const MinStepCost = 0.5

// StepCost returns the cost of entering c.
func StepCost(g city.Grid, c city.Cell) float64 {
	w := g.SurfaceWeight(c.X, c.Y)
	if w < MinStepCost {
		return MinStepCost
	}
	return w
}

// FindPath returns the cells from start to goal inclusive, or nil when the
// goal cannot be reached. The heuristic is plain Manhattan distance; it is
// not scaled down to the 0.5 step-cost floor, so on maps with many tiles
// cheaper than 1.0 the result may be slightly longer than optimal.
func FindPath(g city.Grid, start, goal city.Cell) []city.Cell {
	if !city.Walkable(g, goal) || !city.InBounds(g, start) {
		return nil
	}
	if start == goal {
		return []city.Cell{start}
	}

	limit := g.Width() * g.Height()
	open := &frontier{}
	heap.Push(open, &node{cell: start, g: 0, f: float64(city.Manhattan(start, goal))})

	cameFrom := make(map[city.Cell]city.Cell)
	gScore := map[city.Cell]float64{start: 0}
	closed := make(map[city.Cell]bool)

	for expanded := 0; open.Len() > 0 && expanded < limit; {
		cur := heap.Pop(open).(*node)
		if closed[cur.cell] {
			continue
		}
		if cur.cell == goal {
			return reconstruct(cameFrom, start, goal)
		}
		closed[cur.cell] = true
		expanded++

		for _, next := range cur.cell.Neighbors() {
			if closed[next] || !city.Walkable(g, next) {
				continue
			}
			tentative := cur.g + StepCost(g, next)
			if best, ok := gScore[next]; ok && tentative >= best {
				continue
			}
			gScore[next] = tentative
			cameFrom[next] = cur.cell
			heap.Push(open, &node{
				cell: next,
				g:    tentative,
				f:    tentative + float64(city.Manhattan(next, goal)),
			})
		}
	}
	return nil
}

// PathCost sums the entry cost of every cell after the first.
func PathCost(g city.Grid, path []city.Cell) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += StepCost(g, path[i])
	}
	return total
}

func reconstruct(cameFrom map[city.Cell]city.Cell, start, goal city.Cell) []city.Cell {
	path := []city.Cell{goal}
	for cur := goal; cur != start; {
		cur = cameFrom[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type node struct {
	cell city.Cell
	g    float64
	f    float64
}

// frontier is a min-heap on f; equal priorities fall back to the cell's
// natural (x, then y) order.
type frontier []*node

func (h frontier) Len() int { return len(h) }

func (h frontier) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].cell.X != h[j].cell.X {
		return h[i].cell.X < h[j].cell.X
	}
	return h[i].cell.Y < h[j].cell.Y
}

func (h frontier) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frontier) Push(x any) { *h = append(*h, x.(*node)) }

func (h *frontier) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
