package ingest

import (
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/orders"
)

// FallbackConfig shapes generated orders.
type FallbackConfig struct {
	Count         int
	MaxPayout     float64
	ReleaseWindow float64 // Seconds over which later orders trickle in
	MinDistance   int     // Manhattan distance between pickup and dropoff
}

// Fallback generates random orders when no feed is configured. A third are
// pending from the start; the rest are released across the window. Ids come
// from rng, so a seed reproduces the same orders.
func Fallback(grid city.Grid, rng *rand.Rand, cfg FallbackConfig) []*orders.Order {
	var streets []city.Cell
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			if grid.IsWalkable(x, y) {
				streets = append(streets, city.Cell{X: x, Y: y})
			}
		}
	}
	if len(streets) < 2 || cfg.Count <= 0 {
		return nil
	}
	if cfg.MaxPayout < 20 {
		cfg.MaxPayout = 20
	}

	out := make([]*orders.Order, 0, cfg.Count)
	immediate := (cfg.Count + 2) / 3
	for i := 0; i < cfg.Count; i++ {
		pickup := streets[rng.Intn(len(streets))]
		dropoff := streets[rng.Intn(len(streets))]
		for tries := 0; tries < 16 && city.Manhattan(pickup, dropoff) < cfg.MinDistance; tries++ {
			dropoff = streets[rng.Intn(len(streets))]
		}
		if pickup == dropoff {
			continue
		}

		dist := float64(city.Manhattan(pickup, dropoff))
		payout := math.Round(10+dist*2+rng.Float64()*(cfg.MaxPayout-20)) // Whole currency units
		payout = math.Min(payout, cfg.MaxPayout)
		weight := math.Round((0.5+rng.Float64()*4.5)*10) / 10
		priority := rng.Intn(3)
		limit := math.Round(30 + dist*4 + rng.Float64()*30)

		id := "gen-" + uuid.Must(uuid.NewRandomFromReader(rng)).String()[:8]
		o := orders.New(id, pickup, dropoff, payout, weight, priority, limit)
		if i >= immediate && cfg.ReleaseWindow > 0 {
			o.ReleaseAt = math.Round(rng.Float64() * cfg.ReleaseWindow)
		}
		out = append(out, o)
	}
	return out
}

// Seed puts generated orders into the pool: released ones now, the rest on
// the release queue.
func Seed(pool *orders.Pool, generated []*orders.Order) Result {
	var res Result
	for _, o := range generated {
		switch {
		case pool.IsCancelled(o.ID):
			res.Cancelled++
		case o.ReleaseAt > 0:
			pool.Schedule(o, o.ReleaseAt)
			res.Scheduled++
		case pool.Add(o, 0):
			res.Pending++
		default:
			res.Dropped++
		}
	}
	return res
}
