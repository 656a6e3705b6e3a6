package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const maxRecords = 20

// CycleRecord captures what happened in a single monitor cycle.
type CycleRecord struct {
	RunID      string  `json:"run_id"`
	Tick       uint64  `json:"tick"`
	Level      Level   `json:"level"`
	Population int     `json:"population"`
	Gini       float64 `json:"gini"`
	Action     string  `json:"action"`
	Rationale  string  `json:"rationale,omitempty"`
}

// CycleMemory keeps a ring of recent cycle records, optionally persisted
// to a JSON file between invocations.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`
}

// LoadMemory reads path. A missing or empty path returns empty memory;
// a corrupt file is logged and ignored.
func LoadMemory(path string) *CycleMemory {
	if path == "" {
		return &CycleMemory{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("monitor memory unreadable, starting fresh", "path", path, "error", err)
		}
		return &CycleMemory{}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("monitor memory corrupted, starting fresh", "path", path, "error", err)
		return &CycleMemory{}
	}
	return &mem
}

// Save writes the memory to path. An empty path is a no-op.
func (m *CycleMemory) Save(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal monitor memory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Streak counts the most recent consecutive records of runID at or above
// level.
func (m *CycleMemory) Streak(runID string, level Level) int {
	n := 0
	for i := len(m.Records) - 1; i >= 0; i-- {
		r := m.Records[i]
		if r.RunID != runID || r.Level < level {
			break
		}
		n++
	}
	return n
}

// Summary formats the last n records, one per line.
func (m *CycleMemory) Summary(n int) string {
	start := 0
	if len(m.Records) > n {
		start = len(m.Records) - n
	}
	var b strings.Builder
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "tick %d: %s population=%d gini=%.3f action=%s\n",
			r.Tick, r.Level, r.Population, r.Gini, r.Action)
	}
	return b.String()
}
