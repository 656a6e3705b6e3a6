package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/nile-sim/internal/batch"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/telemetry"
)

func newBatchCmd() *cobra.Command {
	var (
		flags    configFlags
		steps    int
		runs     int
		workers  int
		seedBase int64
		dbPath   string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run many seeds of one configuration in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			if runs <= 0 {
				return fmt.Errorf("--runs must be positive")
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runner := &batch.Runner{
				Workers: workers,
				OnResult: func(res batch.Result) {
					telemetry.ObserveRun(res.Err)
					final := res.Final()
					slog.Info("run complete",
						"run", res.RunID,
						"label", res.Label,
						"seed", res.Config.Seed,
						"population", final.TotalPopulation,
						"gini", fmt.Sprintf("%.3f", final.Gini),
						"elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond),
					)
				},
			}
			if dbPath != "" {
				db, err := persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				runner.DB = db
			}

			jobs := batch.SeedSweep(cfg, runs, steps, seedBase)
			slog.Info("batch starting", "runs", runs, "steps", steps, "workers", workers)
			started := time.Now()
			results, err := runner.Run(ctx, jobs)
			if err != nil {
				return err
			}
			printBatchSummary(results, time.Since(started))
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVar(&steps, "steps", 500, "number of years per run")
	cmd.Flags().IntVar(&runs, "runs", 10, "number of runs")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "concurrent runs")
	cmd.Flags().Int64Var(&seedBase, "seed-base", 0, "base seed for per-run seeds (0 = random)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to record results in")
	return cmd
}

func printBatchSummary(results []batch.Result, elapsed time.Duration) {
	var pop, wealth, gini float64
	aborted, n := 0, 0
	for _, r := range results {
		if r.Err != nil {
			aborted++
			continue
		}
		final := r.Final()
		pop += float64(final.TotalPopulation)
		wealth += final.TotalWealth
		gini += final.Gini
		n++
	}
	fmt.Printf("\n%d runs in %s (%d aborted).\n", len(results), elapsed.Round(time.Millisecond), aborted)
	if n > 0 {
		fmt.Printf("Mean final population %s, wealth %s, Gini %.3f.\n",
			humanize.Comma(int64(pop/float64(n))), humanize.Commaf(float64(int64(wealth/float64(n)))), gini/float64(n))
	}
}
