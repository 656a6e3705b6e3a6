package validation

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/talgya/nile-sim/internal/batch"
	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/persistence"
)

// StorageLossPasses is how many times storage loss is applied per tick.
const StorageLossPasses = 1

// Comparison pairs one run's observed final metrics with the reference.
type Comparison struct {
	Row      Row
	RunID    string
	Seed     int64
	Observed Expected
	Expected Expected
	Err      error // Set when the replayed run aborted
}

// Metric names used in stored comparisons.
const (
	MetricGini       = "gini"
	MetricPopulation = "total_population"
	MetricWealth     = "total_wealth"
)

// RelativeError is (observed - expected) / expected. When expected is zero
// it is 0 for an exact match and ±Inf otherwise.
func RelativeError(observed, expected float64) float64 {
	if expected == 0 {
		if observed == 0 {
			return 0
		}
		return math.Inf(int(math.Copysign(1, observed)))
	}
	return (observed - expected) / expected
}

// Compare replays every row of t through runner for its recorded number of
// steps and pairs the results with the reference metrics. Parameters the
// table does not vary come from base.
func Compare(ctx context.Context, runner *batch.Runner, t *Table, base config.Config) ([]Comparison, error) {
	jobs := make([]batch.Job, len(t.Rows))
	expected := make([]Expected, len(t.Rows))
	for i, row := range t.Rows {
		cfg, err := t.Config(row, base)
		if err != nil {
			return nil, err
		}
		exp, err := t.Expected(row)
		if err != nil {
			return nil, err
		}
		expected[i] = exp
		jobs[i] = batch.Job{
			Label:  fmt.Sprintf("behaviorspace-run-%d", row.RunNumber),
			Config: cfg,
			Steps:  row.Step,
		}
	}

	slog.Info("replaying reference runs", "runs", len(jobs), "width", t.Width, "height", t.Height)
	results, err := runner.Run(ctx, jobs)
	if err != nil {
		return nil, err
	}

	out := make([]Comparison, len(results))
	for i, res := range results {
		final := res.Final()
		out[i] = Comparison{
			Row:      t.Rows[i],
			RunID:    res.RunID,
			Seed:     res.Config.Seed,
			Expected: expected[i],
			Observed: Expected{
				Gini:       final.Gini,
				Population: float64(final.TotalPopulation),
				Wealth:     final.TotalWealth,
			},
			Err: res.Err,
		}
	}
	return out, nil
}

// Records flattens comparisons into stored rows, three per run.
func Records(validationID string, cs []Comparison) []persistence.Comparison {
	out := make([]persistence.Comparison, 0, len(cs)*3)
	for _, c := range cs {
		for _, m := range []struct {
			name     string
			obs, exp float64
		}{
			{MetricGini, c.Observed.Gini, c.Expected.Gini},
			{MetricPopulation, c.Observed.Population, c.Expected.Population},
			{MetricWealth, c.Observed.Wealth, c.Expected.Wealth},
		} {
			out = append(out, persistence.Comparison{
				ValidationID:      validationID,
				RunNumber:         c.Row.RunNumber,
				Metric:            m.name,
				Expected:          m.exp,
				Observed:          m.obs,
				RelativeError:     RelativeError(m.obs, m.exp),
				StorageLossPasses: StorageLossPasses,
			})
		}
	}
	return out
}

// OutputHeadings are appended after the table's headings up to [step].
var OutputHeadings = []string{
	"python-gini", "netlogo-gini-index-reserve",
	"python-total-population", "netlogo-total-population",
	"python-total-wealth", "netlogo-total-wealth",
	"gini-relative-error", "population-relative-error", "wealth-relative-error",
	"storage_loss_passes", "grid_extent", "error",
}

// WriteCSV writes one line per comparison: the table's parameter columns up
// to [step], then the paired metrics and their relative errors.
func WriteCSV(w io.Writer, t *Table, cs []Comparison) error {
	step := t.StepColumn()
	if step < 0 {
		return fmt.Errorf("%w: missing %q heading", ErrMalformed, ColStep)
	}

	cw := csv.NewWriter(w)
	header := append(append([]string{}, t.Headings[:step+1]...), OutputHeadings...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, c := range cs {
		rec := make([]string, 0, len(header))
		rec = append(rec, c.Row.Values[:step+1]...)
		errText := ""
		if c.Err != nil {
			errText = c.Err.Error()
		}
		rec = append(rec,
			formatFloat(c.Observed.Gini), formatFloat(c.Expected.Gini),
			formatFloat(c.Observed.Population), formatFloat(c.Expected.Population),
			formatFloat(c.Observed.Wealth), formatFloat(c.Expected.Wealth),
			formatFloat(RelativeError(c.Observed.Gini, c.Expected.Gini)),
			formatFloat(RelativeError(c.Observed.Population, c.Expected.Population)),
			formatFloat(RelativeError(c.Observed.Wealth, c.Expected.Wealth)),
			strconv.Itoa(StorageLossPasses),
			t.GridExtent(),
			errText,
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
