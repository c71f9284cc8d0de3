package persistence

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/engine"
	"github.com/talgya/courier-sim/internal/orders"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "courier.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func playedSession(t *testing.T) *engine.Simulation {
	t.Helper()
	grid := city.MustFromRows("CCCCCC")
	cfg := engine.DefaultConfig()
	cfg.GoalEarnings = decimal.Zero
	sim, err := engine.NewSimulation(cfg, grid, nil, orders.NewPool(180), func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("deliver", city.Cell{X: 1}, city.Cell{X: 5}, 42.5, 1, 0, 600), 0)
		pool.Add(orders.New("drop", city.Cell{X: 5}, city.Cell{X: 0}, 10, 1, 0, 600), 0)
		rules := agents.DefaultRules()
		return []*agents.Courier{agents.NewCourier(1, "you", city.Cell{}, &rules)}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sim.PlayerAccept("deliver"); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.PlayerAccept("drop"); err != nil {
		t.Fatal(err)
	}
	if err := sim.PlayerCancel("drop"); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetPlayerIntent(1, 0); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 60; i++ {
		sim.TickFrame(uint64(i), 0.05)
	}
	if sim.Player.Stats.Delivered != 1 {
		t.Fatalf("fixture did not deliver: %+v", sim.Player.Stats)
	}
	return sim
}

func TestSaveSessionAndLeaderboard(t *testing.T) {
	db := openTemp(t)
	sim := playedSession(t)

	if err := db.SaveSession(sim, 42); err != nil {
		t.Fatal(err)
	}
	// Saving again replaces rather than duplicates.
	if err := db.SaveSession(sim, 42); err != nil {
		t.Fatal(err)
	}

	rows, err := db.Leaderboard(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("leaderboard rows = %d, want 1", len(rows))
	}
	if rows[0].Name != "you" || rows[0].Earnings.StringFixed(2) != "42.50" || rows[0].Delivered != 1 {
		t.Fatalf("row = %+v", rows[0])
	}

	var outcomes int
	if err := db.conn.Get(&outcomes, "SELECT COUNT(*) FROM order_outcomes WHERE session_id = ?", sim.SessionID); err != nil {
		t.Fatal(err)
	}
	if outcomes != 2 {
		t.Fatalf("order outcomes = %d, want 2", outcomes)
	}
}

func TestCancelledOrdersSurviveReload(t *testing.T) {
	db := openTemp(t)
	if err := db.SaveSession(playedSession(t), 1); err != nil {
		t.Fatal(err)
	}
	ids, err := db.LoadCancelledOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "drop" {
		t.Fatalf("cancelled = %v", ids)
	}

	pool := orders.NewPool(180)
	for _, id := range ids {
		pool.MarkCancelled(id)
	}
	pool.Schedule(orders.New("drop", city.Cell{X: 5}, city.Cell{}, 10, 1, 0, 600), 5)
	if got := pool.ReleaseDue(10); len(got) != 0 {
		t.Fatalf("cancelled order resurrected: %v", got)
	}
}

func TestEventsAndMeta(t *testing.T) {
	db := openTemp(t)
	sim := playedSession(t)
	events := sim.DrainEvents()
	if len(events) == 0 {
		t.Fatalf("no events to save")
	}
	if err := db.SaveEvents(sim.SessionID, events); err != nil {
		t.Fatal(err)
	}
	got, err := db.RecentEvents(sim.SessionID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Description != events[len(events)-1].Description {
		t.Fatalf("recent = %+v", got)
	}

	if _, err := db.GetMeta("missing"); err == nil {
		t.Fatalf("GetMeta(missing) returned no error")
	}
	for want := int64(1); want <= 2; want++ {
		n, err := db.BumpCounter("sessions_played")
		if err != nil || n != want {
			t.Fatalf("BumpCounter = %d, %v; want %d", n, err, want)
		}
	}
}
