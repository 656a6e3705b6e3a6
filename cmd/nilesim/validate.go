package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/nile-sim/internal/batch"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/validation"
)

func newValidateCmd() *cobra.Command {
	var (
		flags     configFlags
		tablePath string
		outPath   string
		dbPath    string
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Replay a NetLogo BehaviorSpace table and compare final metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			table, err := validation.ReadTableFile(tablePath)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runner := &batch.Runner{Workers: workers}
			var db *persistence.DB
			if dbPath != "" {
				db, err = persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				runner.DB = db
			}

			comparisons, err := validation.Compare(ctx, runner, table, base)
			if err != nil {
				return err
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			if err := validation.WriteCSV(out, table, comparisons); err != nil {
				out.Close()
				return fmt.Errorf("write output: %w", err)
			}
			if err := out.Close(); err != nil {
				return err
			}

			validationID := uuid.NewString()
			if db != nil {
				if err := db.SaveComparisons(validation.Records(validationID, comparisons)); err != nil {
					return err
				}
			}
			slog.Info("validation complete",
				"validation", validationID,
				"runs", len(comparisons),
				"output", outPath,
			)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&tablePath, "table", "", "BehaviorSpace table export (CSV)")
	cmd.Flags().StringVar(&outPath, "out", "output.csv", "comparison CSV to write")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to record comparisons in")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "concurrent runs")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
