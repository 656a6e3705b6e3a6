package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/stats"
	"github.com/talgya/nile-sim/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		flags       configFlags
		steps       int
		dbPath      string
		tickLogPath string
		reportEvery int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and report its final metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sim, err := engine.NewSimulation(cfg)
			if err != nil {
				return err
			}
			runID := uuid.NewString()
			slog.Info("run starting",
				"run", runID,
				"seed", sim.Seed(),
				"steps", steps,
				"grid", sim.Grid.String(),
				"settlements", len(sim.Settlements),
				"households", len(sim.Households),
				"population", sim.TotalPopulation(),
			)

			var tickLog *persistence.TickLog
			if tickLogPath != "" {
				tickLog, err = persistence.CreateTickLog(tickLogPath)
				if err != nil {
					return err
				}
				defer tickLog.Close()
			}

			sim.OnStep = func(snap stats.Snapshot, ts engine.TickStats) {
				telemetry.ObserveStep(snap, ts)
				if tickLog != nil {
					if err := tickLog.Write(persistence.EntryFor(runID, sim, snap)); err != nil {
						slog.Error("tick log write failed", "error", err)
					}
				}
				if reportEvery > 0 && snap.Tick%uint64(reportEvery) == 0 {
					logReport(snap, ts)
				}
			}

			started := time.Now()
			step := telemetry.Timed(sim.Step)
			var runErr error
			for i := 0; i < steps; i++ {
				if err := ctx.Err(); err != nil {
					slog.Warn("run interrupted", "tick", sim.CurrentTick())
					break
				}
				if runErr = step(); runErr != nil {
					break
				}
			}
			telemetry.ObserveRun(runErr)
			finished := time.Now()

			if tickLog != nil {
				if err := tickLog.Close(); err != nil {
					return fmt.Errorf("close tick log: %w", err)
				}
				if fi, err := os.Stat(tickLog.Path()); err == nil {
					slog.Info("tick log written", "path", tickLog.Path(), "size", humanize.Bytes(uint64(fi.Size())))
				}
			}

			if dbPath != "" {
				if err := saveRun(dbPath, runID, sim, steps, started, finished, runErr); err != nil {
					return err
				}
			}

			printSummary(sim, finished.Sub(started))
			return runErr
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVar(&steps, "steps", 500, "number of years to simulate")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to record results in")
	cmd.Flags().StringVar(&tickLogPath, "ticklog", "", "zstd JSONL file to write one line per tick to")
	cmd.Flags().IntVar(&reportEvery, "report-every", 50, "log a progress report every N years (0 = off)")
	return cmd
}

func logReport(snap stats.Snapshot, ts engine.TickStats) {
	slog.Info("year report",
		"tick", snap.Tick,
		"time", engine.SimTime(snap.Tick),
		"population", snap.TotalPopulation,
		"households", snap.Households,
		"active_settlements", snap.ActiveSettlements,
		"fields", snap.Fields,
		"wealth", fmt.Sprintf("%.0f", snap.TotalWealth),
		"gini", fmt.Sprintf("%.3f", snap.Gini),
		"claims", ts.Claims,
		"harvests", ts.Harvests,
		"rentals", ts.Rentals,
		"extinctions", ts.Extinctions,
	)
}

func saveRun(path, runID string, sim *engine.Simulation, steps int, started, finished time.Time, runErr error) error {
	db, err := persistence.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	run := persistence.NewRun(runID, "run", sim, steps, started, finished, runErr)
	if err := db.SaveRun(run); err != nil {
		return err
	}
	return db.SaveSimulation(runID, sim)
}

func printSummary(sim *engine.Simulation, elapsed time.Duration) {
	snap := sim.Snapshot()
	fmt.Printf("\nAfter %s years (%s): %s workers in %s households across %d of %d settlements.\n",
		humanize.Comma(int64(snap.Tick)), engine.SimTime(snap.Tick),
		humanize.Comma(int64(snap.TotalPopulation)), humanize.Comma(int64(snap.Households)),
		snap.ActiveSettlements, len(sim.Settlements))
	fmt.Printf("Grain: %s total, %s per settlement. Gini %.3f. Seed %d. Took %s.\n",
		humanize.Commaf(float64(int64(snap.TotalWealth))), humanize.Commaf(float64(int64(snap.MeanWealth))),
		snap.Gini, sim.Seed(), elapsed.Round(time.Millisecond))
}

// signalContext is the batch and validate commands' cancellation context.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
