// Package persistence provides SQLite-based storage for session results,
// order outcomes and the cancelled-order set.
package persistence

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/talgya/courier-sim/internal/engine"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		saved_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		clock REAL NOT NULL,
		ticks INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		weather TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS courier_results (
		session_id TEXT NOT NULL,
		courier_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		earnings TEXT NOT NULL,
		reputation REAL NOT NULL,
		delivered INTEGER NOT NULL,
		early INTEGER NOT NULL,
		cancelled INTEGER NOT NULL,
		expired INTEGER NOT NULL,
		cells_moved REAL NOT NULL,
		rank INTEGER NOT NULL,
		PRIMARY KEY (session_id, courier_id)
	);

	CREATE TABLE IF NOT EXISTS order_outcomes (
		session_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		courier TEXT NOT NULL,
		status TEXT NOT NULL,
		payout TEXT NOT NULL,
		at REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cancelled_orders (
		order_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		clock REAL NOT NULL,
		category TEXT NOT NULL,
		courier TEXT NOT NULL,
		order_id TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_earnings ON courier_results(session_id, rank);
	CREATE INDEX IF NOT EXISTS idx_outcomes_session ON order_outcomes(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSession writes a session's standings, order outcomes and cancelled
// ids in one transaction. Saving the same session again replaces it.
func (db *DB) SaveSession(sim *engine.Simulation, seed int64) error {
	snap := sim.Snapshot()
	results := sim.Results()
	outcomes := sim.Outcomes()

	weather := "none"
	if snap.Weather != nil {
		weather = string(snap.Weather.Condition)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO sessions (id, saved_at, seed, clock, ticks, outcome, weather)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, time.Now().UTC().Format(time.RFC3339), seed, snap.Clock, snap.Tick, snap.Outcome, weather,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, table := range []string{"courier_results", "order_outcomes"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE session_id = ?", snap.SessionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	stmt, err := tx.Preparex(`INSERT INTO courier_results
		(session_id, courier_id, name, difficulty, earnings, reputation,
		 delivered, early, cancelled, expired, cells_moved, rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range results {
		_, err := stmt.Exec(
			snap.SessionID, c.ID, c.Name, c.Difficulty, c.Earnings.StringFixed(2), c.Reputation,
			c.Stats.Delivered, c.Stats.Early, c.Stats.Cancelled, c.Stats.Expired, c.Stats.CellsMoved, c.Rank,
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", c.ID, err)
		}
	}

	for _, o := range outcomes {
		_, err := tx.Exec(`INSERT INTO order_outcomes (session_id, order_id, courier, status, payout, at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.SessionID, o.OrderID, o.Courier, string(o.Status), o.Payout.StringFixed(2), o.At,
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.OrderID, err)
		}
	}

	for _, id := range snap.Cancelled {
		if _, err := tx.Exec("INSERT OR IGNORE INTO cancelled_orders (order_id, session_id) VALUES (?, ?)", id, snap.SessionID); err != nil {
			return fmt.Errorf("insert cancelled %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("session saved", "session", snap.SessionID, "couriers", len(results), "outcomes", len(outcomes), "cancelled", len(snap.Cancelled))
	return nil
}

// LoadCancelledOrders returns every order id cancelled in any session.
func (db *DB) LoadCancelledOrders() ([]string, error) {
	var ids []string
	err := db.conn.Select(&ids, "SELECT order_id FROM cancelled_orders ORDER BY order_id")
	return ids, err
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(sessionID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			`INSERT INTO events (session_id, tick, clock, category, courier, order_id, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, e.Tick, e.Clock, e.Category, e.Courier, e.Order, e.Description,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of a session, newest first.
func (db *DB) RecentEvents(sessionID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		`SELECT tick, clock, category, courier, order_id AS "order", description
		FROM events WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// BumpCounter increments an integer meta value and returns the new value.
func (db *DB) BumpCounter(key string) (int64, error) {
	cur, err := db.GetMeta(key)
	n := int64(0)
	if err == nil {
		n, _ = strconv.ParseInt(cur, 10, 64)
	}
	n++
	return n, db.SaveMeta(key, strconv.FormatInt(n, 10))
}

// LeaderboardRow is one courier's best showing.
type LeaderboardRow struct {
	SessionID  string          `db:"session_id" json:"session_id"`
	Name       string          `db:"name" json:"name"`
	Difficulty string          `db:"difficulty" json:"difficulty"`
	Earnings   decimal.Decimal `db:"earnings" json:"earnings"`
	Reputation float64         `db:"reputation" json:"reputation"`
	Delivered  int             `db:"delivered" json:"delivered"`
	Outcome    string          `db:"outcome" json:"outcome"`
}

// Leaderboard returns the top results across all sessions by earnings.
func (db *DB) Leaderboard(limit int) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := db.conn.Select(&rows, `
		SELECT r.session_id, r.name, r.difficulty, r.earnings, r.reputation, r.delivered, s.outcome
		FROM courier_results r JOIN sessions s ON s.id = r.session_id
		ORDER BY CAST(r.earnings AS REAL) DESC, r.reputation DESC
		LIMIT ?`, limit)
	return rows, err
}
