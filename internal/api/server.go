// Package api provides the HTTP API for observing a courier session.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/courier-sim/internal/engine"
	"github.com/talgya/courier-sim/internal/orders"
	"github.com/talgya/courier-sim/internal/persistence"
)

// Server serves the session state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; leaderboard and snapshots need it
	Seed     int64
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	srv *http.Server
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	// Control endpoints share one limiter.
	controlLimiter := NewRateLimiter(120, time.Minute)
	control := func(h http.HandlerFunc) http.HandlerFunc {
		return s.adminOnly(RateLimitMiddleware(controlLimiter, h))
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/couriers", s.handleCouriers)
	mux.HandleFunc("/api/v1/courier/", s.handleCourierDetail)
	mux.HandleFunc("/api/v1/orders", s.handleOrders)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/leaderboard", s.handleLeaderboard)

	// Weather and speed answer GET publicly and POST behind the admin key.
	mux.HandleFunc("/api/v1/weather", s.adminOnly(s.handleWeather))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	// Admin endpoints (POST only).
	mux.HandleFunc("/api/v1/snapshot", control(s.handleSnapshot))
	mux.HandleFunc("/api/v1/player/move", control(s.handlePlayerMove))
	mux.HandleFunc("/api/v1/player/accept", control(s.handlePlayerAccept))
	mux.HandleFunc("/api/v1/player/cancel", control(s.handlePlayerCancel))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Close stops the listener started by Start.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS is a comma-separated list; localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no COURIER_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()

	weather := map[string]any{"enabled": snap.Weather != nil}
	if snap.Weather != nil {
		weather["condition"] = snap.Weather.Condition
		weather["intensity"] = snap.Weather.Intensity
	}

	leader := ""
	for _, c := range snap.Couriers {
		if c.Rank == 1 {
			leader = c.Name
		}
	}

	writeJSON(w, map[string]any{
		"name":      "courier-sim",
		"session":   snap.SessionID,
		"tick":      snap.Tick,
		"sim_time":  engine.SimTime(snap.Clock),
		"remaining": snap.Remaining,
		"outcome":   snap.Outcome,
		"speed":     s.Eng.Speed(),
		"running":   s.Eng.Running(),
		"couriers":  len(snap.Couriers),
		"leader":    leader,
		"pending":   len(snap.Pending),
		"queued":    snap.Queued,
		"cancelled": len(snap.Cancelled),
		"weather":   weather,
	})
}

func (s *Server) handleCouriers(w http.ResponseWriter, r *http.Request) {
	difficulty := strings.ToLower(r.URL.Query().Get("difficulty"))

	result := []engine.CourierView{}
	for _, c := range s.Sim.Snapshot().Couriers {
		if difficulty != "" && c.Difficulty != difficulty {
			continue
		}
		result = append(result, c)
	}
	writeJSON(w, result)
}

func (s *Server) handleCourierDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing courier id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		http.Error(w, "invalid courier id", http.StatusBadRequest)
		return
	}
	for _, c := range s.Sim.Snapshot().Couriers {
		if uint64(c.ID) == id {
			writeJSON(w, c)
			return
		}
	}
	http.Error(w, "courier not found", http.StatusNotFound)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()

	type heldOrder struct {
		orders.Order
		Courier string `json:"courier"`
	}
	held := []heldOrder{}
	for _, c := range snap.Couriers {
		for _, o := range c.Orders {
			held = append(held, heldOrder{Order: o, Courier: c.Name})
		}
	}
	pending := snap.Pending
	if pending == nil {
		pending = []orders.Order{}
	}

	writeJSON(w, map[string]any{
		"pending":   pending,
		"held":      held,
		"queued":    snap.Queued,
		"cancelled": snap.Cancelled,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var events []engine.Event
	if r.URL.Query().Get("source") == "db" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		var err error
		events, err = s.DB.RecentEvents(s.Sim.Snapshot().SessionID, limit)
		if err != nil {
			slog.Error("events query failed", "error", err)
			http.Error(w, "events query failed", http.StatusInternalServerError)
			return
		}
	} else {
		events = s.Sim.RecentEvents(0)
	}

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []engine.Event{}
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	out := events[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rows, err := s.DB.Leaderboard(limit)
	if err != nil {
		slog.Error("leaderboard query failed", "error", err)
		http.Error(w, "leaderboard query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []persistence.LeaderboardRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Condition string   `json:"condition"`
			Intensity *float64 `json:"intensity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Intensity != nil && (*req.Intensity < 0 || *req.Intensity > 1) {
			http.Error(w, "intensity must be 0-1", http.StatusBadRequest)
			return
		}
		if err := s.Sim.ForceWeatherChange(req.Condition, req.Intensity); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("weather forced", "condition", req.Condition)
	}

	snap := s.Sim.Snapshot()
	if snap.Weather == nil {
		writeJSON(w, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, snap.Weather)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveSession(s.Sim, s.Seed); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	snap := s.Sim.Snapshot()
	writeJSON(w, map[string]any{
		"session": snap.SessionID,
		"tick":    snap.Tick,
		"message": "snapshot saved",
	})
}

func (s *Server) handlePlayerMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		DX int `json:"dx"`
		DY int `json:"dy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.SetPlayerIntent(req.DX, req.DY); err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, map[string]int{"dx": req.DX, "dy": req.DY})
}

func (s *Server) handlePlayerAccept(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeOrderID(w, r)
	if !ok {
		return
	}
	o, err := s.Sim.PlayerAccept(id)
	if err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, o)
}

func (s *Server) handlePlayerCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeOrderID(w, r)
	if !ok {
		return
	}
	if err := s.Sim.PlayerCancel(id); err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, map[string]any{"order_id": id, "outcome": s.Sim.Outcome().String()})
}

func decodeOrderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		http.Error(w, "order_id required", http.StatusBadRequest)
		return "", false
	}
	return req.OrderID, true
}

func writePlayerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNoPlayer), errors.Is(err, orders.ErrUnknownOrder):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, orders.ErrNotPending), errors.Is(err, orders.ErrOverCapacity):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
