// Package monitor implements a steward for a running nilesim server.
// It observes run state via the API, triages it into a health level, and
// can pause the run through the admin speed endpoint.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/nile-sim/internal/stats"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status      Status           `json:"status"`
	Settlements []SettlementInfo `json:"settlements"`
	History     []stats.Snapshot `json:"history"` // Oldest first
}

// Status mirrors GET /api/v1/status.
type Status struct {
	RunID             string  `json:"run_id"`
	Seed              int64   `json:"seed"`
	Tick              uint64  `json:"tick"`
	SimTime           string  `json:"sim_time"`
	Speed             float64 `json:"speed"`
	Running           bool    `json:"running"`
	Population        int     `json:"population"`
	TotalWealth       float64 `json:"total_wealth"`
	Gini              float64 `json:"gini"`
	Settlements       int     `json:"settlements"`
	ActiveSettlements int     `json:"active_settlements"`
	Households        int     `json:"households"`
	Fields            int     `json:"fields"`
	Error             string  `json:"error"`
}

// SettlementInfo mirrors items from GET /api/v1/settlements.
type SettlementInfo struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Households int     `json:"households"`
	Workers    int     `json:"workers"`
	Grain      float64 `json:"grain"`
	Active     bool    `json:"active"`
}

// Observer fetches run state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	Window     uint64 // History ticks fetched per observation
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Window: 50,
	}
}

// Observe fetches status, settlements, and the recent metric history.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/settlements", &snap.Settlements); err != nil {
		return nil, fmt.Errorf("fetch settlements: %w", err)
	}

	from := uint64(0)
	if snap.Status.Tick > o.Window {
		from = snap.Status.Tick - o.Window
	}
	if err := o.fetchJSON(ctx, fmt.Sprintf("/api/v1/stats/history?from=%d", from), &snap.History); err != nil {
		return nil, fmt.Errorf("fetch stats history: %w", err)
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// responds or ctx ends.
func (o *Observer) WaitReady(ctx context.Context, maxBackoff time.Duration) error {
	backoff := 500 * time.Millisecond
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	for {
		var st Status
		err := o.fetchJSON(ctx, "/api/v1/status", &st)
		if err == nil {
			slog.Info("nilesim API is ready", "run", st.RunID, "tick", st.Tick)
			return nil
		}
		slog.Info("nilesim API not ready, retrying", "backoff", backoff, "error", err)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
