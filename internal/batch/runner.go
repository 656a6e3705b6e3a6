// Package batch runs independent simulations in parallel: parameter sweeps,
// seed sweeps, and the reference comparison runs.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/entropy"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/stats"
)

// Job describes one run.
type Job struct {
	Label  string
	Config config.Config
	Steps  int
}

// Result is the outcome of one job. Err is set when the run aborted; the
// history then ends at the last completed tick.
type Result struct {
	RunID      string
	Index      int
	Label      string
	Config     config.Config // Seed filled in
	Steps      int
	History    []stats.Snapshot
	Events     []engine.Event
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Final returns the last recorded snapshot.
func (r Result) Final() stats.Snapshot {
	if len(r.History) == 0 {
		return stats.Snapshot{}
	}
	return r.History[len(r.History)-1]
}

// Record converts the result to its stored form.
func (r Result) Record() persistence.Run {
	cfgJSON, _ := json.Marshal(r.Config)
	final := r.Final()
	run := persistence.Run{
		ID:              r.RunID,
		Label:           r.Label,
		Seed:            r.Config.Seed,
		Steps:           r.Steps,
		ConfigJSON:      string(cfgJSON),
		StartedAt:       r.StartedAt.Unix(),
		FinishedAt:      r.FinishedAt.Unix(),
		FinalPopulation: final.TotalPopulation,
		FinalWealth:     final.TotalWealth,
		FinalGini:       final.Gini,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// Runner executes jobs on a bounded number of goroutines.
type Runner struct {
	Workers int             // Concurrent runs; <= 0 means one
	DB      *persistence.DB // Optional: every result is saved here

	// OnStep, if set, is called after every step of every run. It is called
	// from worker goroutines and must be safe for concurrent use.
	OnStep func(runID string, sim *engine.Simulation, snap stats.Snapshot)

	// OnResult, if set, is called once per finished job, also concurrently.
	OnResult func(Result)
}

// Run executes every job and returns the results in job order. A run that
// aborts on an invariant violation is reported in its Result; invalid
// configuration, a store failure, or cancellation stops the whole batch.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var storeMu sync.Mutex
	for i, job := range jobs {
		g.Go(func() error {
			res, err := r.runOne(gCtx, i, job)
			results[i] = res
			if err != nil {
				return err
			}
			if r.DB != nil {
				storeMu.Lock()
				err := r.store(res)
				storeMu.Unlock()
				if err != nil {
					return err
				}
			}
			if r.OnResult != nil {
				r.OnResult(res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, index int, job Job) (Result, error) {
	res := Result{
		RunID:     uuid.NewString(),
		Index:     index,
		Label:     job.Label,
		Steps:     job.Steps,
		StartedAt: time.Now(),
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	sim, err := engine.NewSimulation(job.Config)
	if err != nil {
		var ie *engine.InvariantError
		if errors.As(err, &ie) {
			res.Config = job.Config
			res.Err = err
			res.FinishedAt = time.Now()
			return res, nil
		}
		return res, fmt.Errorf("job %d (%s): %w", index, job.Label, err)
	}
	res.Config = sim.Config

	if r.OnStep != nil {
		sim.OnStep = func(snap stats.Snapshot, _ engine.TickStats) {
			r.OnStep(res.RunID, sim, snap)
		}
	}

	for t := 0; t < job.Steps; t++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := sim.Step(); err != nil {
			res.Err = err
			slog.Warn("run aborted", "run", res.RunID, "label", job.Label, "seed", sim.Seed(), "tick", sim.CurrentTick(), "error", err)
			break
		}
	}

	res.History = sim.History()
	res.Events = sim.Events
	res.FinishedAt = time.Now()

	final := res.Final()
	slog.Debug("run finished",
		"run", res.RunID,
		"label", job.Label,
		"seed", sim.Seed(),
		"ticks", final.Tick,
		"population", final.TotalPopulation,
		"gini", final.Gini,
		"elapsed", res.FinishedAt.Sub(res.StartedAt),
	)
	return res, nil
}

func (r *Runner) store(res Result) error {
	if err := r.DB.SaveRun(res.Record()); err != nil {
		return err
	}
	if err := r.DB.SaveTickMetrics(res.RunID, res.History); err != nil {
		return fmt.Errorf("save tick metrics for %s: %w", res.RunID, err)
	}
	if err := r.DB.SaveEvents(res.RunID, res.Events); err != nil {
		return fmt.Errorf("save events for %s: %w", res.RunID, err)
	}
	return nil
}

// SeedSweep returns n jobs over base, each with its own seed derived from
// seedBase. A seedBase of 0 draws one.
func SeedSweep(base config.Config, n, steps int, seedBase int64) []Job {
	if seedBase == 0 {
		seedBase = entropy.CryptoSeed()
	}
	jobs := make([]Job, n)
	for i := range jobs {
		cfg := base
		cfg.Seed = entropy.Derive(seedBase, i)
		jobs[i] = Job{
			Label:  fmt.Sprintf("seed-%d", i),
			Config: cfg,
			Steps:  steps,
		}
	}
	return jobs
}
