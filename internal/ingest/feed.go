// Package ingest turns a raw order feed into pool entries: records are
// validated against an embedded JSON schema, deadlines are converted to
// sim seconds, and off-street coordinates are snapped to the nearest
// walkable cell.
package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
)

//go:embed order.schema.json
var orderSchemaJSON string

var orderSchema = jsonschema.MustCompileString("order.schema.json", orderSchemaJSON)

// Record is one validated feed entry.
type Record struct {
	ID          string  `json:"id"`
	Pickup      [2]int  `json:"pickup"`
	Dropoff     [2]int  `json:"dropoff"`
	Payout      float64 `json:"payout"`
	Weight      float64 `json:"weight"`
	Priority    int     `json:"priority"`
	Deadline    string  `json:"deadline,omitempty"`
	ReleaseTime float64 `json:"release_time,omitempty"`
	TimeLimit   float64 `json:"time_limit,omitempty"`
}

type feed struct {
	StartTime string            `json:"start_time"`
	Data      []json.RawMessage `json:"data"`
}

// Options controls conversion.
type Options struct {
	DefaultTimeLimit float64 // Used when a record has neither limit nor deadline
	DefaultWeight    float64
}

// DefaultOptions returns the stock conversion settings.
func DefaultOptions() Options {
	return Options{DefaultTimeLimit: 180, DefaultWeight: 1}
}

// Result counts what happened to a feed.
type Result struct {
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Dropped   int `json:"dropped"`
	Cancelled int `json:"cancelled"` // Skipped because a previous session cancelled them
	Snapped   int `json:"snapped"`
}

// LoadFile reads a feed file and seeds the pool.
func LoadFile(path string, grid city.Grid, pool *orders.Pool, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()
	return Load(f, grid, pool, opts)
}

// Load decodes a feed, converts every valid record and seeds the pool.
// Malformed records are dropped, never fatal; only an unreadable feed is an
// error.
func Load(r io.Reader, grid city.Grid, pool *orders.Pool, opts Options) (Result, error) {
	recs, start, dropped, err := Decode(r)
	if err != nil {
		return Result{}, err
	}
	res := Result{Dropped: dropped}
	for _, rec := range recs {
		o, snapped, err := Convert(rec, start, grid, opts)
		if err != nil {
			slog.Debug("feed record dropped", "id", rec.ID, "error", err)
			res.Dropped++
			continue
		}
		if snapped {
			res.Snapped++
		}
		if pool.IsCancelled(o.ID) {
			res.Cancelled++
			continue
		}
		if o.ReleaseAt > 0 {
			pool.Schedule(o, o.ReleaseAt)
			res.Scheduled++
		} else if pool.Add(o, 0) {
			res.Pending++
		} else {
			res.Dropped++
		}
	}
	return res, nil
}

// Decode parses the feed envelope and validates each record against the
// schema. It returns the valid records, the feed start time (zero when
// absent) and the number of invalid records.
func Decode(r io.Reader) ([]Record, time.Time, int, error) {
	var f feed
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, time.Time{}, 0, fmt.Errorf("decoding feed: %w", err)
	}

	var start time.Time
	if f.StartTime != "" {
		t, err := time.Parse(time.RFC3339, f.StartTime)
		if err != nil {
			return nil, time.Time{}, 0, fmt.Errorf("feed start_time: %w", err)
		}
		start = t
	}

	var recs []Record
	dropped := 0
	for i, raw := range f.Data {
		if err := validate(raw); err != nil {
			slog.Debug("feed record invalid", "index", i, "error", err)
			dropped++
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			dropped++
			continue
		}
		recs = append(recs, rec)
	}
	return recs, start, dropped, nil
}

func validate(raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return orderSchema.Validate(v)
}

// Convert builds an order from a record. The deadline, when present, is
// converted to sim seconds after start; a missing time limit is derived
// from it. snapped reports whether a coordinate had to move to a street.
func Convert(rec Record, start time.Time, grid city.Grid, opts Options) (*orders.Order, bool, error) {
	pickup, movedP, err := snap(grid, rec.Pickup)
	if err != nil {
		return nil, false, fmt.Errorf("pickup: %w", err)
	}
	dropoff, movedD, err := snap(grid, rec.Dropoff)
	if err != nil {
		return nil, false, fmt.Errorf("dropoff: %w", err)
	}
	if pickup == dropoff {
		return nil, false, fmt.Errorf("pickup and dropoff collapse to %v", pickup)
	}

	var deadline *float64
	if rec.Deadline != "" {
		if start.IsZero() {
			return nil, false, fmt.Errorf("deadline %q without feed start_time", rec.Deadline)
		}
		t, err := time.Parse(time.RFC3339, rec.Deadline)
		if err != nil {
			return nil, false, fmt.Errorf("deadline: %w", err)
		}
		d := t.Sub(start).Seconds()
		if d <= rec.ReleaseTime {
			return nil, false, fmt.Errorf("deadline %s falls before release", rec.Deadline)
		}
		deadline = &d
	}

	limit := rec.TimeLimit
	if limit <= 0 {
		limit = opts.DefaultTimeLimit
		if deadline != nil {
			limit = *deadline - rec.ReleaseTime
		}
	}
	weight := rec.Weight
	if weight <= 0 {
		weight = opts.DefaultWeight
	}

	o := orders.New(rec.ID, pickup, dropoff, rec.Payout, weight, rec.Priority, limit)
	o.Deadline = deadline
	o.ReleaseAt = rec.ReleaseTime
	return o, movedP || movedD, nil
}

func snap(grid city.Grid, xy [2]int) (city.Cell, bool, error) {
	c := city.Cell{X: xy[0], Y: xy[1]}
	if grid.IsWalkable(c.X, c.Y) {
		return c, false, nil
	}
	s, ok := city.NearestWalkable(grid, c)
	if !ok {
		return city.Cell{}, false, fmt.Errorf("no street near %v", c)
	}
	return s, true, nil
}
