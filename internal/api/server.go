// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public and read-only. POST /api/v1/speed requires a
// bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/stats"
	"github.com/talgya/nile-sim/internal/telemetry"
)

// Server serves the state of one simulation over HTTP. All reads happen
// under a read lock; Step takes the write lock.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// OnStep, if set, is called after every step outside the lock.
	OnStep func(snap stats.Snapshot)

	mu      sync.RWMutex
	hub     *Hub
	http    *http.Server
	started time.Time
}

// NewServer creates a server for sim.
func NewServer(sim *engine.Simulation, eng *engine.Engine, runID string, port int) *Server {
	return &Server{
		Sim:     sim,
		Eng:     eng,
		RunID:   runID,
		Port:    port,
		hub:     NewHub(),
		started: time.Now(),
	}
}

// Step advances the simulation under the write lock and broadcasts the new
// snapshot to stream subscribers.
func (s *Server) Step() error {
	s.mu.Lock()
	err := s.Sim.Step()
	snap := s.Sim.Snapshot()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.Broadcast(snap)
	if s.OnStep != nil {
		s.OnStep(snap)
	}
	return nil
}

// Snapshot returns the current metrics.
func (s *Server) Snapshot() stats.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Sim.Snapshot()
}

// Save records the run and its results in DB.
func (s *Server) Save() error {
	if s.DB == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := persistence.NewRun(s.RunID, "serve", s.Sim, int(s.Sim.CurrentTick()), s.started, time.Now(), s.Sim.Aborted())
	if err := s.DB.SaveRun(run); err != nil {
		return err
	}
	return s.DB.SaveSimulation(s.RunID, s.Sim)
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	streamLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/settlements", s.handleSettlements)
	mux.HandleFunc("/api/v1/households", s.handleHouseholds)
	mux.HandleFunc("/api/v1/fields", s.handleFields)
	mux.HandleFunc("/api/v1/grid", s.handleGrid)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/portrayal", s.handlePortrayal)
	mux.HandleFunc("/api/v1/stream", RateLimitMiddleware(streamLimiter, s.handleStream))

	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	mux.Handle("/metrics", telemetry.Handler())

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and closes stream subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set NILESIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
		"http://localhost:8521": true,
	}
	if env := os.Getenv("NILESIM_CORS_ORIGINS"); env != "" {
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
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no NILESIM_ADMIN_KEY set)", http.StatusForbidden)
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	tick := s.Sim.CurrentTick()
	status := map[string]any{
		"name":               "Nile settlements",
		"run_id":             s.RunID,
		"seed":               s.Sim.Seed(),
		"tick":               tick,
		"sim_time":           engine.SimTime(tick),
		"flood":              s.Sim.LastFlood,
		"population":         s.Sim.TotalPopulation(),
		"mean_population":    s.Sim.MeanPopulation(),
		"total_wealth":       s.Sim.TotalWealth(),
		"mean_wealth":        s.Sim.MeanWealth(),
		"gini":               s.Sim.Gini(),
		"settlements":        len(s.Sim.Settlements),
		"active_settlements": s.Sim.ActiveSettlements(),
		"households":         len(s.Sim.Households),
		"fields":             len(s.Sim.Fields),
		"last_tick":          s.Sim.LastStats,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.CurrentSpeed()
		status["running"] = s.Eng.Running()
	}
	if err := s.Sim.Aborted(); err != nil {
		status["error"] = err.Error()
	}
	writeJSON(w, status)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	type settlementSummary struct {
		ID         uint64  `json:"id"`
		Name       string  `json:"name"`
		X          int     `json:"x"`
		Y          int     `json:"y"`
		Households int     `json:"households"`
		Workers    int     `json:"workers"`
		Grain      float64 `json:"grain"`
		Active     bool    `json:"active"`
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]settlementSummary, 0, len(s.Sim.Settlements))
	for _, st := range s.Sim.Settlements {
		out = append(out, settlementSummary{
			ID:         st.ID,
			Name:       st.Name,
			X:          st.Position.X,
			Y:          st.Position.Y,
			Households: len(st.Households),
			Workers:    st.Workers(),
			Grain:      st.Grain(),
			Active:     st.Active(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleHouseholds(w http.ResponseWriter, r *http.Request) {
	type householdSummary struct {
		ID           uint64   `json:"id"`
		SettlementID uint64   `json:"settlement_id"`
		Workers      int      `json:"workers"`
		Grain        float64  `json:"grain"`
		Competency   float64  `json:"competency"`
		Ambition     float64  `json:"ambition"`
		Countdown    int      `json:"generation_countdown"`
		Fields       []uint64 `json:"fields"`
	}

	var settlementFilter uint64
	if v := r.URL.Query().Get("settlement"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid settlement id", http.StatusBadRequest)
			return
		}
		settlementFilter = id
	}
	sortBy := r.URL.Query().Get("sort")

	s.mu.RLock()
	out := make([]householdSummary, 0, len(s.Sim.Households))
	for _, h := range s.Sim.Households {
		if settlementFilter != 0 && h.SettlementID != settlementFilter {
			continue
		}
		ids := make([]uint64, len(h.Fields))
		for i, f := range h.Fields {
			ids[i] = f.ID
		}
		out = append(out, householdSummary{
			ID:           h.ID,
			SettlementID: h.SettlementID,
			Workers:      h.Workers,
			Grain:        h.Grain,
			Competency:   h.Competency,
			Ambition:     h.Ambition,
			Countdown:    h.GenerationCountdown,
			Fields:       ids,
		})
	}
	s.mu.RUnlock()

	switch sortBy {
	case "grain":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Grain > out[j].Grain })
	case "workers":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Workers > out[j].Workers })
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, out)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	type fieldSummary struct {
		ID            uint64  `json:"id"`
		OwnerID       uint64  `json:"owner_id"`
		X             int     `json:"x"`
		Y             int     `json:"y"`
		Fertility     float64 `json:"fertility"`
		Harvested     bool    `json:"harvested"`
		YearsFallowed int     `json:"years_fallowed"`
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]fieldSummary, 0, len(s.Sim.Fields))
	for _, f := range s.Sim.Fields {
		out = append(out, fieldSummary{
			ID:            f.ID,
			OwnerID:       f.OwnerID,
			X:             f.Position.X,
			Y:             f.Position.Y,
			Fertility:     s.Sim.Grid.Fertility(f.Position),
			Harvested:     f.Harvested,
			YearsFallowed: f.YearsFallowed,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.Sim.Grid
	writeJSON(w, map[string]any{
		"width":     g.Width,
		"height":    g.Height,
		"flood":     s.Sim.LastFlood,
		"fertility": g.Fertilities(), // row-major
		"occupied":  g.OccupiedCount(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	s.mu.RLock()
	events := s.Sim.Events
	start := len(events) - limit
	if start < 0 {
		start = 0
	}
	out := make([]engine.Event, len(events)-start)
	copy(out, events[start:])
	s.mu.RUnlock()

	// Newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	writeJSON(w, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.Sim.Snapshot()
	s.mu.RUnlock()
	writeJSON(w, snap)
}

// handleStatsHistory serves the in-memory history, or the stored history of
// another run when ?run= names one.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	fromTick := uint64(0)
	toTick := uint64(1<<63 - 1)
	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			fromTick = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.ParseUint(t, 10, 64); err == nil {
			toTick = v
		}
	}

	var history []stats.Snapshot
	if run := r.URL.Query().Get("run"); run != "" && run != s.RunID {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		rows, err := s.DB.RunHistory(run)
		if err != nil {
			slog.Error("stats history query failed", "run", run, "error", err)
			http.Error(w, "history query failed", http.StatusInternalServerError)
			return
		}
		history = rows
	} else {
		s.mu.RLock()
		history = s.Sim.History()
		s.mu.RUnlock()
	}

	out := make([]stats.Snapshot, 0, len(history))
	for _, snap := range history {
		if snap.Tick >= fromTick && snap.Tick <= toTick {
			out = append(out, snap)
		}
	}
	writeJSON(w, out)
}

func (s *Server) handlePortrayal(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	layers := PortrayGrid(s.Sim)
	s.mu.RUnlock()
	writeJSON(w, layers)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.CurrentSpeed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
