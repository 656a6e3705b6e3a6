package persistence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/stats"
)

// TickEntry is one line of the tick log.
type TickEntry struct {
	RunID       string         `json:"run_id"`
	Flood       [2]int         `json:"flood"` // mu, sigma
	Stats       stats.Snapshot `json:"stats"`
	Claims      int            `json:"claims"`
	Harvests    int            `json:"harvests"`
	Rentals     int            `json:"rentals"`
	Extinctions int            `json:"extinctions"`
	Births      int            `json:"births"`
}

// EntryFor builds the log entry for the step sim just completed.
func EntryFor(runID string, sim *engine.Simulation, snap stats.Snapshot) TickEntry {
	ts := sim.LastStats
	return TickEntry{
		RunID:       runID,
		Flood:       [2]int{sim.LastFlood.Mu, sim.LastFlood.Sigma},
		Stats:       snap,
		Claims:      ts.Claims,
		Harvests:    ts.Harvests,
		Rentals:     ts.Rentals,
		Extinctions: ts.Extinctions,
		Births:      ts.Births,
	}
}

// TickLog writes one JSON line per tick into a zstd-compressed file.
type TickLog struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// CreateTickLog creates (or truncates) a tick log at path.
func CreateTickLog(path string) (*TickLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tick log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tick log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &TickLog{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the file the log writes to.
func (l *TickLog) Path() string {
	return l.path
}

// Write appends one entry.
func (l *TickLog) Write(e TickEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return errors.New("tick log closed")
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	return l.w.WriteByte('\n')
}

// Close flushes and closes the log. Safe to call more than once.
func (l *TickLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.w != nil {
		errs = append(errs, l.w.Flush())
		l.w = nil
	}
	if l.enc != nil {
		errs = append(errs, l.enc.Close())
		l.enc = nil
	}
	if l.f != nil {
		errs = append(errs, l.f.Close())
		l.f = nil
	}
	return errors.Join(errs...)
}

// ReadTickLog decodes every entry of a tick log.
func ReadTickLog(path string) ([]TickEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var out []TickEntry
	jd := json.NewDecoder(dec)
	for {
		var e TickEntry
		if err := jd.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("decode tick %d: %w", len(out), err)
		}
		out = append(out, e)
	}
	return out, nil
}
