// Command couriersim runs a courier delivery session: a human courier
// against Easy, Medium and Hard AI couriers competing for orders on a
// procedurally generated city grid.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/api"
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/engine"
	"github.com/talgya/courier-sim/internal/entropy"
	"github.com/talgya/courier-sim/internal/ingest"
	"github.com/talgya/courier-sim/internal/journal"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/persistence"
	"github.com/talgya/courier-sim/internal/tuning"
	"github.com/talgya/courier-sim/internal/weather"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found (using environment variables)")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(getEnv("LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("courier-sim failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := getEnv("COURIER_DB", "data/courier.db")
	tuningPath := getEnv("COURIER_TUNING", "")
	feedPath := getEnv("COURIER_FEED", "")
	journalDir := getEnv("COURIER_JOURNAL_DIR", "data/journal")
	adminKey := os.Getenv("COURIER_ADMIN_KEY")
	apiPort, err := strconv.Atoi(getEnv("COURIER_API_PORT", "8080"))
	if err != nil {
		return fmt.Errorf("COURIER_API_PORT: %w", err)
	}
	headless := getEnv("COURIER_HEADLESS", "") == "1"

	// ── Tuning ────────────────────────────────────────────────────────
	t := tuning.Default()
	if tuningPath != "" {
		if t, err = tuning.Load(tuningPath); err != nil {
			return fmt.Errorf("loading tuning: %w", err)
		}
		slog.Info("tuning loaded", "path", tuningPath)
	}

	rng := entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY"))
	seed := entropy.ResolveSeed(t.Sim.Seed, rng)
	slog.Info("session seed", "seed", seed, "random_org", rng.Enabled())

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return err
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── City ──────────────────────────────────────────────────────────
	var grid city.Grid
	if len(t.City.Rows) > 0 {
		m, err := city.FromRows(t.City.Rows, nil)
		if err != nil {
			return err
		}
		grid = m
	} else {
		grid = city.Generate(t.GenConfig(entropy.Derive(seed, "city")))
	}
	slog.Info("city ready", "width", grid.Width(), "height", grid.Height())

	// ── Weather ───────────────────────────────────────────────────────
	var wx *weather.Engine
	if t.Weather.Enabled {
		wx = weather.NewEngine(t.WeatherConfig(), entropy.NewRand(seed, "weather"))
	}

	// ── Orders ────────────────────────────────────────────────────────
	pool := orders.NewPool(t.Orders.PendingTTL)
	cancelled, err := db.LoadCancelledOrders()
	if err != nil {
		return fmt.Errorf("loading cancelled orders: %w", err)
	}
	for _, id := range cancelled {
		pool.MarkCancelled(id)
	}
	if len(cancelled) > 0 {
		slog.Info("cancelled orders restored", "count", len(cancelled))
	}

	setup := func(pool *orders.Pool) ([]*agents.Courier, error) {
		if err := seedOrders(feedPath, grid, pool, seed, t); err != nil {
			return nil, err
		}
		return agents.NewSpawner(seed).Spawn(grid, agents.SpawnConfig{
			Seed:     seed,
			Couriers: t.Agents,
			Rules:    t.Courier,
		})
	}

	sim, err := engine.NewSimulation(t.SessionConfig(), grid, wx, pool, setup)
	if err != nil {
		return err
	}

	// ── Journal ───────────────────────────────────────────────────────
	events := journal.NewEventLogger(journalDir)
	defer events.Close()
	results := journal.NewResultLogger(journalDir)
	defer results.Close()

	flush := func() {
		batch := sim.DrainEvents()
		if len(batch) == 0 {
			return
		}
		if err := events.WriteEvents(sim.SessionID, batch); err != nil {
			slog.Error("journal write failed", "error", err)
		}
		if err := db.SaveEvents(sim.SessionID, batch); err != nil {
			slog.Error("event save failed", "error", err)
		}
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.TickRate = t.Sim.TickRate
	eng.Headless = headless

	eng.OnTick = func(tick uint64, dt float64) {
		sim.TickFrame(tick, dt)
		if sim.Finished() {
			eng.Stop()
		}
	}
	eng.OnSecond = func(tick uint64) { flush() }
	eng.OnMinute = sim.Report

	if adminKey == "" {
		slog.Warn("COURIER_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Seed:     seed,
		Port:     apiPort,
		AdminKey: adminKey,
	}
	apiServer.Start()
	defer apiServer.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	snap := sim.Snapshot()
	fmt.Printf("\n%d couriers on a %dx%d city, %d orders pending, %d queued.\n",
		len(snap.Couriers), grid.Width(), grid.Height(), len(snap.Pending), snap.Queued)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println("Starting session... (Ctrl+C to stop)")

	eng.Run()

	// ── Wrap up ───────────────────────────────────────────────────────
	flush()
	if err := db.SaveSession(sim, seed); err != nil {
		slog.Error("final save failed", "error", err)
	}
	played, err := db.BumpCounter("sessions_played")
	if err != nil {
		slog.Error("session counter failed", "error", err)
	}
	if err := db.SaveMeta("last_seed", strconv.FormatInt(seed, 10)); err != nil {
		slog.Error("meta save failed", "error", err)
	}

	final := sim.Snapshot()
	standings := sim.Results()
	if err := results.WriteResult(journal.Result{
		Session:  final.SessionID,
		Outcome:  final.Outcome,
		Clock:    final.Clock,
		Couriers: standings,
	}); err != nil {
		slog.Error("result journal failed", "error", err)
	}

	fmt.Printf("\nSession %s after %s (%s sessions played).\n", final.Outcome, engine.SimTime(final.Clock), humanize.Comma(played))
	for _, c := range standings {
		fmt.Printf("  %d. %-18s %-7s $%s  rep %.0f  delivered %d\n",
			c.Rank, c.Name, c.Difficulty, c.Earnings.StringFixed(2), c.Reputation, c.Stats.Delivered)
	}
	return nil
}

// seedOrders fills the pool from the feed file, or from generated orders
// when no feed is configured.
func seedOrders(feedPath string, grid city.Grid, pool *orders.Pool, seed int64, t tuning.Tuning) error {
	if feedPath != "" {
		res, err := ingest.LoadFile(feedPath, grid, pool, ingest.DefaultOptions())
		if err != nil {
			return fmt.Errorf("loading order feed: %w", err)
		}
		slog.Info("order feed loaded", "path", feedPath, "pending", res.Pending, "scheduled", res.Scheduled,
			"dropped", res.Dropped, "cancelled", res.Cancelled, "snapped", res.Snapped)
		return nil
	}

	generated := ingest.Fallback(grid, entropy.NewRand(seed, "orders"), ingest.FallbackConfig{
		Count:         t.Orders.FallbackCount,
		MaxPayout:     t.Orders.MaxPayout,
		ReleaseWindow: t.Sim.SessionSeconds / 2,
		MinDistance:   4,
	})
	res := ingest.Seed(pool, generated)
	if res.Pending+res.Scheduled == 0 {
		return errors.New("no orders to play: feed empty and generation produced nothing")
	}
	slog.Info("orders generated", "pending", res.Pending, "scheduled", res.Scheduled, "cancelled", res.Cancelled)
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
