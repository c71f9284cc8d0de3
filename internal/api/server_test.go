package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talgya/courier-sim/internal/agents"
	"github.com/talgya/courier-sim/internal/city"
	"github.com/talgya/courier-sim/internal/engine"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/persistence"
	"github.com/talgya/courier-sim/internal/weather"
)

const testKey = "secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	grid := city.MustFromRows("CCCCC", "CCCCC")
	rules := agents.DefaultRules()
	cfg := engine.DefaultConfig()
	cfg.GoalEarnings = decimal.Zero
	w := weather.NewEngine(weather.DefaultConfig(), rand.New(rand.NewSource(1)))
	sim, err := engine.NewSimulation(cfg, grid, w, orders.NewPool(180), func(pool *orders.Pool) ([]*agents.Courier, error) {
		pool.Add(orders.New("A", city.Cell{X: 2}, city.Cell{X: 4}, 50, 1, 0, 600), 0)
		player := agents.NewCourier(1, "you", city.Cell{}, &rules)
		bot := agents.NewCourier(2, "bot", city.Cell{Y: 1}, &rules)
		bot.Difficulty = agents.DifficultyEasy
		bot.Strategy = agents.NewStrategy(agents.DifficultyEasy, rand.New(rand.NewSource(2)))
		return []*agents.Courier{player, bot}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Server{Sim: sim, Eng: engine.NewEngine(), AdminKey: testKey}
}

func do(t *testing.T, h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStatusAndCouriers(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var status map[string]any
	decode(t, rec, &status)
	if status["outcome"] != "running" || status["couriers"] != float64(2) || status["pending"] != float64(1) {
		t.Fatalf("status = %v", status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/couriers?difficulty=easy", "", "")
	var couriers []engine.CourierView
	decode(t, rec, &couriers)
	if len(couriers) != 1 || couriers[0].Name != "bot" {
		t.Fatalf("easy couriers = %+v", couriers)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/courier/9", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown courier code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/courier/x", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad courier id code = %d", rec.Code)
	}
}

func TestWeatherRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	body := `{"condition":"storm","intensity":0.8}`

	if rec := do(t, h, http.MethodPost, "/api/v1/weather", body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/weather", body, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/weather", `{"condition":"hail"}`, testKey); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown condition code = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/weather", body, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("forced weather code = %d: %s", rec.Code, rec.Body.String())
	}
	var snap weather.Snapshot
	decode(t, rec, &snap)
	if snap.Condition != weather.Storm || snap.Intensity != 0.8 {
		t.Fatalf("weather = %+v", snap)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/events?category=weather", "", "")
	var events []engine.Event
	decode(t, rec, &events)
	if len(events) != 1 {
		t.Fatalf("weather events = %+v", events)
	}

	s.AdminKey = ""
	if rec := do(t, s.Handler(), http.MethodPost, "/api/v1/weather", body, testKey); rec.Code != http.StatusForbidden {
		t.Fatalf("disabled admin code = %d", rec.Code)
	}
}

func TestSpeedBounds(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":500}`, testKey); rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range code = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":4}`, testKey)
	var got map[string]float64
	decode(t, rec, &got)
	if got["speed"] != 4 || s.Eng.Speed() != 4 {
		t.Fatalf("speed = %v, engine %v", got, s.Eng.Speed())
	}
}

func TestPlayerAcceptAndCancel(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/player/accept", `{"order_id":"A"}`, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept code = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/player/accept", `{"order_id":"A"}`, testKey); rec.Code != http.StatusConflict {
		t.Fatalf("second accept code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/player/accept", `{}`, testKey); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id code = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/orders", "", "")
	var book struct {
		Pending []orders.Order `json:"pending"`
		Held    []struct {
			ID      string `json:"id"`
			Courier string `json:"courier"`
		} `json:"held"`
	}
	decode(t, rec, &book)
	if len(book.Pending) != 0 || len(book.Held) != 1 || book.Held[0].Courier != "you" {
		t.Fatalf("orders = %+v", book)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/player/move", `{"dx":3,"dy":0}`, testKey); rec.Code != http.StatusOK {
		t.Fatalf("move code = %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/player/cancel", `{"order_id":"B"}`, testKey); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown code = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/player/cancel", `{"order_id":"A"}`, testKey)
	var res map[string]any
	decode(t, rec, &res)
	if res["outcome"] != "running" {
		t.Fatalf("cancel result = %v", res)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/courier/1", "", "")
	var you engine.CourierView
	decode(t, rec, &you)
	if you.Reputation != 66 || you.Stats.Cancelled != 1 || len(you.Orders) != 0 {
		t.Fatalf("player after cancel = %+v", you)
	}
}

func TestLeaderboardAndSnapshot(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/leaderboard", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no db code = %d", rec.Code)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s.DB = db
	h = s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/snapshot", "", testKey); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("snapshot GET code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/snapshot", "", testKey); rec.Code != http.StatusOK {
		t.Fatalf("snapshot code = %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/api/v1/leaderboard?limit=5", "", "")
	var rows []persistence.LeaderboardRow
	decode(t, rec, &rows)
	if len(rows) != 2 {
		t.Fatalf("leaderboard rows = %+v", rows)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other IPs have their own bucket")
	}
	if got := rl.RetryAfter("1.2.3.4"); got != 61 {
		t.Fatalf("retry after = %d, want 61", got)
	}
	now = now.Add(time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("window should reset")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d code = %d, want %d", i, rec.Code, want)
		}
	}
	if got := clientIP(req); got != "9.9.9.9" {
		t.Fatalf("client ip = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("client ip = %q", got)
	}
}
