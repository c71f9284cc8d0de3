package engine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/weather"
)

func newTestSim(t *testing.T, grid city.Grid, setup Setup) *Simulation {
	t.Helper()
	cfg := DefaultConfig()
	cfg.GoalEarnings = decimal.Zero
	cfg.SessionLength = 0
	sim, err := NewSimulation(cfg, grid, nil, orders.NewPool(180), setup)
	if err != nil {
		t.Fatal(err)
	}
	return sim
}

func courier(id agents.CourierID, name string, at city.Cell, d agents.Difficulty) *agents.Courier {
	rules := agents.DefaultRules()
	c := agents.NewCourier(id, name, at, &rules)
	c.Difficulty = d
	c.Strategy = agents.NewStrategy(d, rand.New(rand.NewSource(int64(id))))
	return c
}

func run(sim *Simulation, ticks int) {
	for i := 0; i < ticks; i++ {
		sim.TickFrame(sim.LastTick+1, 0.05)
	}
}

func TestContestedOrderGoesToFirstCourier(t *testing.T) {
	grid := city.MustFromRows("CCCCC")
	var first, second *agents.Courier
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("A", city.Cell{X: 2}, city.Cell{X: 4}, 50, 1, 0, 600), 0)
		first = courier(1, "first", city.Cell{}, agents.DifficultyMedium)
		second = courier(2, "second", city.Cell{}, agents.DifficultyMedium)
		return []*agents.Courier{first, second}, nil
	})

	run(sim, 1)
	if first.Inventory.Get("A") == nil {
		t.Fatalf("first courier does not hold A")
	}
	if second.Inventory.Len() != 0 || sim.Pool.Len() != 0 {
		t.Fatalf("second=%d pool=%d, want 0 and 0", second.Inventory.Len(), sim.Pool.Len())
	}

	accepted := 0
	for _, e := range sim.RecentEvents(0) {
		if e.Category == CategoryOrder && e.Order == "A" {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accept events for A = %d, want 1", accepted)
	}
}

func TestPlayerAcceptLosesToEarlierCourier(t *testing.T) {
	grid := city.MustFromRows("CCCCC")
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("A", city.Cell{X: 2}, city.Cell{X: 4}, 50, 1, 0, 600), 0)
		return []*agents.Courier{
			courier(1, "bot", city.Cell{}, agents.DifficultyMedium),
			courier(2, "you", city.Cell{X: 4}, agents.DifficultyNone),
		}, nil
	})

	run(sim, 1)
	if _, err := sim.PlayerAccept("A"); !errors.Is(err, orders.ErrNotPending) {
		t.Fatalf("PlayerAccept after bot took A err = %v", err)
	}
}

func TestExpiryPenaltyAppliedOnce(t *testing.T) {
	grid := city.MustFromRows("CCCCCCCC")
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("A", city.Cell{X: 7}, city.Cell{X: 6}, 50, 1, 0, 1), 0)
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	if _, err := sim.PlayerAccept("A"); err != nil {
		t.Fatal(err)
	}

	run(sim, 60)
	if got := sim.Player.Reputation; got != 60 {
		t.Fatalf("reputation = %v, want 60", got)
	}
	if sim.Player.Inventory.Len() != 0 || sim.Player.Stats.Expired != 1 {
		t.Fatalf("inventory=%d expired=%d", sim.Player.Inventory.Len(), sim.Player.Stats.Expired)
	}
	outs := sim.Outcomes()
	if len(outs) != 1 || outs[0].Status != orders.StatusExpired {
		t.Fatalf("outcomes = %+v", outs)
	}
}

func TestDiagonalIntentSlidesAlongWall(t *testing.T) {
	grid := city.MustFromRows(
		"CC",
		"CB",
	)
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	if err := sim.SetPlayerIntent(1, 1); err != nil {
		t.Fatal(err)
	}
	run(sim, 20)
	if got := sim.Player.Cell(); got != (city.Cell{X: 1, Y: 0}) {
		t.Fatalf("player at %v, want (1,0)", got)
	}
	if got := sim.Player.Stats.CellsMoved; got < 0.999 || got > 1.001 {
		t.Fatalf("cells moved = %v, want 1", got)
	}
}

func TestPlayerPicksUpAndDelivers(t *testing.T) {
	grid := city.MustFromRows("CCCCCCC")
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("A", city.Cell{X: 3}, city.Cell{X: 6}, 80, 2, 1, 600), 0)
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	if _, err := sim.PlayerAccept("A"); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetPlayerIntent(1, 0); err != nil {
		t.Fatal(err)
	}
	run(sim, 100)

	p := sim.Player
	if p.Stats.Delivered != 1 || p.Inventory.Len() != 0 {
		t.Fatalf("delivered=%d held=%d", p.Stats.Delivered, p.Inventory.Len())
	}
	if got := p.Earnings.StringFixed(2); got != "80.00" {
		t.Fatalf("earnings = %s, want 80.00", got)
	}
	if p.Reputation != 75 {
		t.Fatalf("reputation = %v, want 75 for an early delivery", p.Reputation)
	}
	if got := p.Cell(); got != (city.Cell{X: 6}) {
		t.Fatalf("player stopped at %v, want the corridor end", got)
	}
}

func TestStandingStillRecoversStamina(t *testing.T) {
	grid := city.MustFromRows("CCC")
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	sim.Player.Stamina = 10
	run(sim, 20)
	if got := sim.Player.Stamina; got < 14.99 || got > 15.01 {
		t.Fatalf("stamina after 1s idle = %v, want 15", got)
	}
}

func TestCancelCanLoseTheGame(t *testing.T) {
	grid := city.MustFromRows("CCC")
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("A", city.Cell{X: 2}, city.Cell{X: 0}, 50, 1, 0, 600), 0)
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	sim.Player.Reputation = 22
	if _, err := sim.PlayerAccept("A"); err != nil {
		t.Fatal(err)
	}
	if err := sim.PlayerCancel("A"); err != nil {
		t.Fatal(err)
	}
	if !sim.Pool.IsCancelled("A") {
		t.Fatalf("cancelled id not remembered")
	}
	run(sim, 1)
	if sim.Outcome() != OutcomeLost {
		t.Fatalf("outcome = %s, want lost", sim.Outcome())
	}
	clock := sim.Clock
	run(sim, 5)
	if sim.Clock != clock {
		t.Fatalf("finished session kept ticking")
	}
}

func TestResetRespawnsAndKeepsCancelled(t *testing.T) {
	grid := city.MustFromRows("CCC")
	calls := 0
	sim := newTestSim(t, grid, func(pool *orders.Pool) ([]*agents.Courier, error) {
		calls++
		pool.Add(orders.New("A", city.Cell{X: 2}, city.Cell{X: 0}, 50, 1, 0, 600), 0)
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	first := sim.SessionID
	if _, err := sim.PlayerAccept("A"); err != nil {
		t.Fatal(err)
	}
	if err := sim.PlayerCancel("A"); err != nil {
		t.Fatal(err)
	}
	run(sim, 10)

	if err := sim.Reset(); err != nil {
		t.Fatal(err)
	}
	if calls != 2 || sim.SessionID == first || sim.Clock != 0 {
		t.Fatalf("calls=%d session changed=%v clock=%v", calls, sim.SessionID != first, sim.Clock)
	}
	if sim.Player.Reputation != 70 || !sim.Pool.IsCancelled("A") {
		t.Fatalf("reputation=%v cancelled=%v", sim.Player.Reputation, sim.Pool.IsCancelled("A"))
	}
}

func TestForceWeatherChange(t *testing.T) {
	grid := city.MustFromRows("CCC")
	cfg := DefaultConfig()
	w := weather.NewEngine(weather.DefaultConfig(), rand.New(rand.NewSource(1)))
	sim, err := NewSimulation(cfg, grid, w, orders.NewPool(180), func(pool *orders.Pool) ([]*agents.Courier, error) {
		return []*agents.Courier{courier(1, "you", city.Cell{}, agents.DifficultyNone)}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := sim.ForceWeatherChange("volcano", nil); err == nil {
		t.Fatalf("unknown condition accepted")
	}
	full := 1.0
	if err := sim.ForceWeatherChange("storm", &full); err != nil {
		t.Fatal(err)
	}
	if cond, _ := w.Current(); cond != weather.Storm {
		t.Fatalf("condition = %s, want storm", cond)
	}
	snap := sim.Snapshot()
	if snap.Weather == nil || len(snap.Couriers) != 1 || snap.Couriers[0].Rank != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestEngineStepCallbacks(t *testing.T) {
	e := NewEngine()
	var ticks, seconds, minutes int
	e.OnTick = func(tick uint64, dt float64) {
		ticks++
		if dt != 0.05 {
			t.Fatalf("dt = %v, want 0.05", dt)
		}
	}
	e.OnSecond = func(uint64) { seconds++ }
	e.OnMinute = func(uint64) { minutes++ }
	for i := 0; i < 1200; i++ {
		e.Step()
	}
	if ticks != 1200 || seconds != 60 || minutes != 1 {
		t.Fatalf("ticks=%d seconds=%d minutes=%d", ticks, seconds, minutes)
	}
	if err := e.SetSpeed(-1); err == nil {
		t.Fatalf("negative speed accepted")
	}
}
