package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/nile-sim/internal/monitor"
)

func newWatchCmd() *cobra.Command {
	var (
		apiURL     string
		interval   time.Duration
		window     uint64
		pauseAfter int
		memoryPath string
		once       bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor a running serve instance and report its health",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiURL = strings.TrimRight(apiURL, "/")
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			observer := monitor.NewObserver(apiURL)
			observer.Window = window
			m := &monitor.Monitor{
				Observer: observer,
				Memory:   monitor.LoadMemory(memoryPath),
				Policy:   monitor.Policy{PauseOnCritical: pauseAfter},
			}
			if key := os.Getenv("NILESIM_ADMIN_KEY"); key != "" {
				m.Actor = monitor.NewActor(apiURL, key)
			} else if pauseAfter > 0 {
				slog.Warn("NILESIM_ADMIN_KEY not set, the monitor will not pause runs")
			}

			slog.Info("monitor starting", "api_url", apiURL, "interval", interval, "window", window)
			if err := observer.WaitReady(ctx, 30*time.Second); err != nil {
				return err
			}

			defer func() {
				if err := m.Memory.Save(memoryPath); err != nil {
					slog.Error("save monitor memory failed", "error", err)
				}
			}()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if _, err := m.RunCycle(ctx); err != nil {
					if errors.Is(err, ctx.Err()) {
						return nil
					}
					slog.Error("monitor cycle failed", "error", err)
				}
				if once {
					fmt.Print(m.Memory.Summary(1))
					return nil
				}
				select {
				case <-ctx.Done():
					fmt.Println("Monitor stopped.")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&apiURL, "url", "http://localhost:8080", "base URL of the serve API")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "time between checks")
	cmd.Flags().Uint64Var(&window, "window", 50, "years of history compared per check")
	cmd.Flags().IntVar(&pauseAfter, "pause-after", 0, "pause the run after this many consecutive CRITICAL checks (0 = never)")
	cmd.Flags().StringVar(&memoryPath, "memory", "", "JSON file keeping recent check results between invocations")
	cmd.Flags().BoolVar(&once, "once", false, "run a single check and exit")
	return cmd
}
