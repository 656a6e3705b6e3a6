package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/nile-sim/internal/api"
	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		flags       configFlags
		port        int
		interval    time.Duration
		speed       float64
		maxTicks    uint64
		dbPath      string
		reportEvery int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulation in real time behind the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			sim, err := engine.NewSimulation(cfg)
			if err != nil {
				return err
			}
			sim.OnStep = telemetry.ObserveStep
			runID := uuid.NewString()

			eng := engine.NewEngine(nil)
			eng.Interval = interval
			eng.Speed = speed
			eng.MaxTicks = maxTicks

			srv := api.NewServer(sim, eng, runID, port)
			srv.AdminKey = os.Getenv("NILESIM_ADMIN_KEY")
			if srv.AdminKey == "" {
				slog.Warn("NILESIM_ADMIN_KEY not set, admin POST endpoints disabled")
			}

			var db *persistence.DB
			if dbPath != "" {
				db, err = persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				srv.DB = db
			}

			eng.Step = telemetry.Timed(srv.Step)
			eng.OnTick = func(tick uint64) {
				if reportEvery > 0 && tick%uint64(reportEvery) == 0 {
					snap := srv.Snapshot()
					slog.Info("year report",
						"tick", tick,
						"time", engine.SimTime(tick),
						"population", snap.TotalPopulation,
						"households", snap.Households,
						"gini", fmt.Sprintf("%.3f", snap.Gini),
					)
				}
			}

			srv.Start()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			go func() {
				<-ctx.Done()
				slog.Info("shutting down")
				eng.Stop()
			}()

			fmt.Printf("\nSimulating %d settlements on a %s grid (seed %d).\n",
				len(sim.Settlements), sim.Grid.String(), sim.Seed())
			fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
			fmt.Println("Starting simulation... (Ctrl+C to stop)")

			runErr := eng.Run()
			telemetry.ObserveRun(runErr)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP shutdown failed", "error", err)
			}

			if db != nil {
				if err := srv.Save(); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "wall time per simulated year at speed 1")
	cmd.Flags().Float64Var(&speed, "speed", 1, "speed multiplier (0 = paused)")
	cmd.Flags().Uint64Var(&maxTicks, "max-ticks", 0, "stop after this many years (0 = run until interrupted)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to record results in on shutdown")
	cmd.Flags().IntVar(&reportEvery, "report-every", 10, "log a progress report every N years (0 = off)")
	return cmd
}
