// Package persistence records simulation results in SQLite: run metadata,
// per-tick metric history, events, and validation comparisons. Simulation
// state itself is never stored; a run cannot be resumed.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/stats"
)

// DB wraps a SQLite connection for result storage.
type DB struct {
	conn *sqlx.DB
}

// Run is one simulation run as stored in the runs table.
type Run struct {
	ID              string  `db:"id" json:"id"`
	Label           string  `db:"label" json:"label"`
	Seed            int64   `db:"seed" json:"seed"`
	Steps           int     `db:"steps" json:"steps"`
	ConfigJSON      string  `db:"config_json" json:"config"`
	StartedAt       int64   `db:"started_at" json:"started_at"`   // Unix seconds
	FinishedAt      int64   `db:"finished_at" json:"finished_at"` // Unix seconds
	FinalPopulation int     `db:"final_population" json:"final_population"`
	FinalWealth     float64 `db:"final_wealth" json:"final_wealth"`
	FinalGini       float64 `db:"final_gini" json:"final_gini"`
	Error           string  `db:"error" json:"error,omitempty"`
}

// NewRun builds the run record for sim as it stands now.
func NewRun(id, label string, sim *engine.Simulation, steps int, started, finished time.Time, runErr error) Run {
	cfgJSON, _ := json.Marshal(sim.Config)
	final := sim.Snapshot()
	r := Run{
		ID:              id,
		Label:           label,
		Seed:            sim.Seed(),
		Steps:           steps,
		ConfigJSON:      string(cfgJSON),
		StartedAt:       started.Unix(),
		FinishedAt:      finished.Unix(),
		FinalPopulation: final.TotalPopulation,
		FinalWealth:     final.TotalWealth,
		FinalGini:       final.Gini,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Comparison is one observed-versus-expected metric from a validation pass.
type Comparison struct {
	ValidationID      string  `db:"validation_id" json:"validation_id"`
	RunNumber         int     `db:"run_number" json:"run_number"`
	Metric            string  `db:"metric" json:"metric"`
	Expected          float64 `db:"expected" json:"expected"`
	Observed          float64 `db:"observed" json:"observed"`
	RelativeError     float64 `db:"relative_error" json:"relative_error"`
	StorageLossPasses int     `db:"storage_loss_passes" json:"storage_loss_passes"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		final_population INTEGER NOT NULL,
		final_wealth REAL NOT NULL,
		final_gini REAL NOT NULL,
		error TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_metrics (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		total_population INTEGER NOT NULL,
		mean_population REAL NOT NULL,
		total_wealth REAL NOT NULL,
		mean_wealth REAL NOT NULL,
		gini REAL NOT NULL,
		households INTEGER NOT NULL,
		fields INTEGER NOT NULL,
		active_settlements INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS comparisons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		validation_id TEXT NOT NULL,
		run_number INTEGER NOT NULL,
		metric TEXT NOT NULL,
		expected REAL NOT NULL,
		observed REAL NOT NULL,
		relative_error REAL NOT NULL,
		storage_loss_passes INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_comparisons_validation ON comparisons(validation_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun inserts or replaces a run record.
func (db *DB) SaveRun(r Run) error {
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO runs
		(id, label, seed, steps, config_json, started_at, finished_at,
		 final_population, final_wealth, final_gini, error)
		VALUES (:id, :label, :seed, :steps, :config_json, :started_at, :finished_at,
		 :final_population, :final_wealth, :final_gini, :error)`, r)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun loads a single run record.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", id)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recently finished runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY finished_at DESC, id LIMIT ?",
		limit,
	)
	return runs, err
}

// SaveTickMetrics writes the metric history of a run (full replace).
func (db *DB) SaveTickMetrics(runID string, history []stats.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tick_metrics WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO tick_metrics
		(run_id, tick, total_population, mean_population, total_wealth,
		 mean_wealth, gini, households, fields, active_settlements)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range history {
		_, err := stmt.Exec(
			runID, s.Tick, s.TotalPopulation, s.MeanPopulation, s.TotalWealth,
			s.MeanWealth, s.Gini, s.Households, s.Fields, s.ActiveSettlements,
		)
		if err != nil {
			return fmt.Errorf("insert tick %d: %w", s.Tick, err)
		}
	}

	return tx.Commit()
}

// RunHistory returns the stored metric history of a run in tick order.
func (db *DB) RunHistory(runID string) ([]stats.Snapshot, error) {
	var history []stats.Snapshot
	err := db.conn.Select(&history,
		`SELECT tick, total_population, mean_population, total_wealth,
		        mean_wealth, gini, households, fields, active_settlements
		 FROM tick_metrics WHERE run_id = ? ORDER BY tick`,
		runID,
	)
	return history, err
}

// SaveEvents appends events for a run.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
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
			"INSERT INTO events (run_id, tick, description, category) VALUES (?, ?, ?, ?)",
			runID, e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

// SaveComparisons appends the rows of one validation pass.
func (db *DB) SaveComparisons(rows []Comparison) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range rows {
		_, err := tx.NamedExec(`INSERT INTO comparisons
			(validation_id, run_number, metric, expected, observed, relative_error, storage_loss_passes)
			VALUES (:validation_id, :run_number, :metric, :expected, :observed, :relative_error, :storage_loss_passes)`, c)
		if err != nil {
			return fmt.Errorf("insert comparison %d/%s: %w", c.RunNumber, c.Metric, err)
		}
	}

	return tx.Commit()
}

// Comparisons returns the rows of a validation pass in insertion order.
func (db *DB) Comparisons(validationID string) ([]Comparison, error) {
	var rows []Comparison
	err := db.conn.Select(&rows,
		`SELECT validation_id, run_number, metric, expected, observed, relative_error, storage_loss_passes
		 FROM comparisons WHERE validation_id = ? ORDER BY id`,
		validationID,
	)
	return rows, err
}

// SaveMeta stores a key-value pair for a run.
func (db *DB) SaveMeta(runID, key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		runID, key, value,
	)
	return err
}

// GetMeta retrieves a metadata value for a run.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE run_id = ? AND key = ?", runID, key)
	return value, err
}

// SaveSimulation stores everything a finished run produced: metric history,
// its events, and the tick it reached.
func (db *DB) SaveSimulation(runID string, sim *engine.Simulation) error {
	history := sim.History()
	slog.Info("saving run results", "run", runID, "ticks", len(history), "events", len(sim.Events))

	if err := db.SaveTickMetrics(runID, history); err != nil {
		return fmt.Errorf("save tick metrics: %w", err)
	}
	if err := db.SaveEvents(runID, sim.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta(runID, "last_tick", strconv.FormatUint(sim.CurrentTick(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta(runID, "seed", strconv.FormatInt(sim.Seed(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("run results saved", "run", runID)
	return nil
}
