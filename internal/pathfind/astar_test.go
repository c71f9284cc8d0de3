package pathfind

import (
	"math"
	"math/rand"
	"testing"

	"github.com/talgya/courier-sim/internal/city"
)

// dijkstra is a brute-force reference: repeated relaxation until stable.
func dijkstra(g city.Grid, start, goal city.Cell) (float64, bool) {
	dist := map[city.Cell]float64{start: 0}
	for changed := true; changed; {
		changed = false
		for y := 0; y < g.Height(); y++ {
			for x := 0; x < g.Width(); x++ {
				c := city.Cell{X: x, Y: y}
				d, ok := dist[c]
				if !ok {
					continue
				}
				for _, n := range c.Neighbors() {
					if !city.Walkable(g, n) {
						continue
					}
					nd := d + StepCost(g, n)
					if old, ok := dist[n]; !ok || nd < old-1e-12 {
						dist[n] = nd
						changed = true
					}
				}
			}
		}
	}
	d, ok := dist[goal]
	return d, ok
}

func checkContiguous(t *testing.T, g city.Grid, path []city.Cell, start, goal city.Cell) {
	t.Helper()
	if path[0] != start || path[len(path)-1] != goal {
		t.Fatalf("path endpoints = %v..%v, want %v..%v", path[0], path[len(path)-1], start, goal)
	}
	for i := 1; i < len(path); i++ {
		if city.Manhattan(path[i-1], path[i]) != 1 {
			t.Fatalf("non-adjacent step %v -> %v", path[i-1], path[i])
		}
		if !city.Walkable(g, path[i]) {
			t.Fatalf("path enters blocked cell %v", path[i])
		}
	}
}

func TestFindPathMatchesDijkstra(t *testing.T) {
	m := city.MustFromRows(
		"CCCCCCCC",
		"CBBBPPBC",
		"CBCCCPBC",
		"CPCBBCCC",
		"CPCCBPPC",
		"CCCCCCCC",
	)
	cells := m.WalkableCells()
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 60; i++ {
		start := cells[rng.Intn(len(cells))]
		goal := cells[rng.Intn(len(cells))]

		path := FindPath(m, start, goal)
		want, ok := dijkstra(m, start, goal)
		if !ok {
			t.Fatalf("fixture should be connected: %v -> %v", start, goal)
		}
		if len(path) == 0 {
			t.Fatalf("FindPath(%v, %v) returned no path", start, goal)
		}
		checkContiguous(t, m, path, start, goal)
		if got := PathCost(m, path); math.Abs(got-want) > 1e-9 {
			t.Fatalf("FindPath(%v, %v) cost = %v, want %v\n%s", start, goal, got, want, m.Draw(nil))
		}
	}
}

func TestFindPathSameCell(t *testing.T) {
	m := city.MustFromRows("CCC")
	path := FindPath(m, city.Cell{X: 1}, city.Cell{X: 1})
	if len(path) != 1 || path[0] != (city.Cell{X: 1}) {
		t.Fatalf("path = %v", path)
	}
}

func TestFindPathUnreachable(t *testing.T) {
	blockedGoal := city.MustFromRows(
		"CCC",
		"CBC",
		"CCC",
	)
	if path := FindPath(blockedGoal, city.Cell{}, city.Cell{X: 1, Y: 1}); path != nil {
		t.Fatalf("path into building = %v, want nil", path)
	}

	ring := city.MustFromRows(
		"CCCCCCC",
		"CBBBBBC",
		"CBCCCBC",
		"CBCCCBC",
		"CBBBBBC",
		"CCCCCCC",
	)
	if path := FindPath(ring, city.Cell{}, city.Cell{X: 3, Y: 2}); path != nil {
		t.Fatalf("path through wall ring = %v, want nil", path)
	}
	if path := FindPath(ring, city.Cell{}, city.Cell{X: 99, Y: 2}); path != nil {
		t.Fatalf("path to out-of-bounds goal = %v, want nil", path)
	}
}

func TestFindPathPrefersCheapSurface(t *testing.T) {
	legend := city.DefaultLegend()
	legend['M'] = city.TileInfo{Name: "mud", Walkable: true, SurfaceWeight: 3}
	m, err := city.FromRows([]string{
		"CMMC",
		"CCCC",
	}, legend)
	if err != nil {
		t.Fatal(err)
	}
	// Straight through the mud costs 7; the street detour costs 5.
	path := FindPath(m, city.Cell{X: 0, Y: 0}, city.Cell{X: 3, Y: 0})
	if got := PathCost(m, path); got != 5 {
		t.Fatalf("cost = %v, want 5 (detour around mud); path %v", got, path)
	}
}

func TestStepCostFloor(t *testing.T) {
	legend := city.DefaultLegend()
	legend['I'] = city.TileInfo{Name: "ice", Walkable: true, SurfaceWeight: 0.1}
	m, _ := city.FromRows([]string{"CI"}, legend)
	if got := StepCost(m, city.Cell{X: 1}); got != MinStepCost {
		t.Fatalf("StepCost(ice) = %v, want %v", got, MinStepCost)
	}
}

func TestNavigatorStepsAndConsumesHead(t *testing.T) {
	m := city.MustFromRows(
		"CCCC",
		"BBBC",
		"CCCC",
	)
	var nav Navigator
	pos := city.Cell{X: 0, Y: 0}
	goal := city.Cell{X: 0, Y: 2}

	for steps := 0; pos != goal; steps++ {
		if steps > 20 {
			t.Fatalf("navigator did not reach goal, at %v", pos)
		}
		dx, dy, ok := nav.Next(m, pos, goal)
		if !ok {
			t.Fatalf("Next reported unreachable at %v", pos)
		}
		if abs(dx)+abs(dy) != 1 {
			t.Fatalf("step = (%d,%d), want unit step", dx, dy)
		}
		pos = pos.Add(dx, dy)
	}
	if nav.Replans() != 1 {
		t.Fatalf("replans = %d, want 1 for an undisturbed walk", nav.Replans())
	}

	if dx, dy, ok := nav.Next(m, pos, goal); dx != 0 || dy != 0 || !ok {
		t.Fatalf("Next at goal = (%d,%d,%v)", dx, dy, ok)
	}
}

func TestNavigatorReplansAfterDrift(t *testing.T) {
	m := city.MustFromRows(
		"CCCCC",
		"CCCCC",
	)
	var nav Navigator
	goal := city.Cell{X: 4, Y: 0}
	if _, _, ok := nav.Next(m, city.Cell{X: 0, Y: 0}, goal); !ok {
		t.Fatalf("expected a path")
	}
	// Teleport (e.g. undo) to a cell that is not the handed-out step.
	dx, dy, ok := nav.Next(m, city.Cell{X: 3, Y: 1}, goal)
	if !ok || nav.Replans() != 2 {
		t.Fatalf("expected replan after drift, replans=%d", nav.Replans())
	}
	if got := (city.Cell{X: 3, Y: 1}).Add(dx, dy); city.Manhattan(got, goal) != 1 {
		t.Fatalf("step after drift goes to %v", got)
	}

	// New goal also replans.
	nav.Next(m, city.Cell{X: 3, Y: 1}, city.Cell{X: 0, Y: 1})
	if nav.Replans() != 3 {
		t.Fatalf("replans = %d after goal change, want 3", nav.Replans())
	}
}

func TestNavigatorUnreachable(t *testing.T) {
	m := city.MustFromRows("CBC")
	var nav Navigator
	if _, _, ok := nav.Next(m, city.Cell{X: 0}, city.Cell{X: 2}); ok {
		t.Fatalf("expected unreachable")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
