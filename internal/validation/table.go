// Package validation replays NetLogo BehaviorSpace experiments and compares
// the final metrics against the reference tool's output.
package validation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/talgya/nile-sim/internal/config"
)

// Table layout: rows 0-5 are metadata, row 5 holds min-pxcor, max-pxcor,
// min-pycor, max-pycor, row 6 is the heading row, data follows.
const (
	boundsRow  = 5
	headingRow = 6
)

// Well-known headings.
const (
	ColRunNumber  = "[run number]"
	ColStep       = "[step]"
	ColGini       = "gini-index-reserve / total-households / 0.5"
	ColPopulation = "total-population"
	ColWealth     = "total-grain"
)

// ErrMalformed is wrapped by every table parsing error.
var ErrMalformed = errors.New("malformed BehaviorSpace table")

// Table is a parsed BehaviorSpace table export reduced to the last step of
// each run.
type Table struct {
	Width    int
	Height   int
	Headings []string
	Rows     []Row // Ordered by run number
}

// Row is the final recorded step of one run.
type Row struct {
	RunNumber int
	Step      int
	Values    []string // Aligned with Table.Headings
}

// Expected holds the reference tool's final metrics for a row.
type Expected struct {
	Gini       float64
	Population float64
	Wealth     float64
}

// GridExtent describes the replayed grid. NetLogo patch bounds are inclusive,
// so a 0..30 world is 31 patches wide, one more than max minus min.
func (t *Table) GridExtent() string {
	return fmt.Sprintf("%dx%d inclusive", t.Width, t.Height)
}

// ReadTableFile opens and parses a table export.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// ReadTable parses a BehaviorSpace table export. When a run appears on
// several rows only the row with the highest step is kept.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) <= headingRow {
		return nil, fmt.Errorf("%w: %d rows, need at least %d", ErrMalformed, len(records), headingRow+1)
	}

	bounds, err := parseInts(records[boundsRow], 4)
	if err != nil {
		return nil, fmt.Errorf("%w: world bounds: %v", ErrMalformed, err)
	}
	t := &Table{
		// NetLogo patch coordinates are inclusive at both ends.
		Width:    bounds[1] - bounds[0] + 1,
		Height:   bounds[3] - bounds[2] + 1,
		Headings: records[headingRow],
	}

	runIdx := t.column(ColRunNumber)
	stepIdx := t.column(ColStep)
	if runIdx < 0 || stepIdx < 0 {
		return nil, fmt.Errorf("%w: missing %q or %q heading", ErrMalformed, ColRunNumber, ColStep)
	}

	last := make(map[int]Row)
	for i, rec := range records[headingRow+1:] {
		if len(rec) == 0 || (len(rec) == 1 && rec[0] == "") {
			continue
		}
		if len(rec) <= runIdx || len(rec) <= stepIdx {
			return nil, fmt.Errorf("%w: data row %d too short", ErrMalformed, i)
		}
		run, err := strconv.Atoi(rec[runIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: data row %d run number: %v", ErrMalformed, i, err)
		}
		step, err := strconv.Atoi(rec[stepIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: data row %d step: %v", ErrMalformed, i, err)
		}
		if prev, ok := last[run]; !ok || step > prev.Step {
			last[run] = Row{RunNumber: run, Step: step, Values: rec}
		}
	}

	for _, row := range last {
		t.Rows = append(t.Rows, row)
	}
	sort.Slice(t.Rows, func(i, j int) bool { return t.Rows[i].RunNumber < t.Rows[j].RunNumber })
	return t, nil
}

func parseInts(rec []string, n int) ([]int, error) {
	if len(rec) < n {
		return nil, fmt.Errorf("have %d values, want %d", len(rec), n)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(rec[i]))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *Table) column(name string) int {
	for i, h := range t.Headings {
		if h == name {
			return i
		}
	}
	return -1
}

// StepColumn returns the index of the [step] heading. Output rows repeat
// the headings up to and including it.
func (t *Table) StepColumn() int {
	return t.column(ColStep)
}

// Value returns the row's value under heading, and whether it is present.
func (t *Table) Value(r Row, heading string) (string, bool) {
	i := t.column(heading)
	if i < 0 || i >= len(r.Values) {
		return "", false
	}
	return r.Values[i], true
}

// Config builds the run configuration for r on top of base. Parameters the
// table does not vary keep their base value.
func (t *Table) Config(r Row, base config.Config) (config.Config, error) {
	cfg := base
	cfg.Width = t.Width
	cfg.Height = t.Height

	ints := []struct {
		heading string
		dst     *int
	}{
		{"starting-settlements", &cfg.StartingSettlements},
		{"starting-households", &cfg.StartingHouseholds},
		{"starting-household-size", &cfg.StartingHouseholdSize},
		{"knowledge-radius", &cfg.KnowledgeRadius},
		{"fallow-limit", &cfg.FallowLimit},
	}
	floats := []struct {
		heading string
		dst     *float64
		scale   float64
	}{
		{"starting-grain", &cfg.StartingGrain, 1},
		{"min-competency", &cfg.MinCompetency, 1},
		{"min-ambition", &cfg.MinAmbition, 1},
		{"pop-growth-rate", &cfg.PopulationGrowthRate, 1},
		{"generational-variation", &cfg.GenerationalVariation, 1},
		{"distance-cost", &cfg.DistanceCost, 1},
		{"land-rental-rate", &cfg.LandRentalRate, 0.01}, // percent in the table
		{"annual-competency-increase", &cfg.AnnualCompetencyIncrease, 1},
	}

	for _, p := range ints {
		v, ok := t.Value(r, p.heading)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			// NetLogo sliders sometimes export integers as "5.0".
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return cfg, fmt.Errorf("run %d %s: %w", r.RunNumber, p.heading, err)
			}
			n = int(f)
		}
		*p.dst = n
	}
	for _, p := range floats {
		v, ok := t.Value(r, p.heading)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("run %d %s: %w", r.RunNumber, p.heading, err)
		}
		*p.dst = f * p.scale
	}
	if v, ok := t.Value(r, "allow-land-rental?"); ok {
		cfg.AllowRental = strings.EqualFold(v, "true")
	}
	return cfg, nil
}

// Expected returns the reference metrics recorded for r.
func (t *Table) Expected(r Row) (Expected, error) {
	var e Expected
	for _, m := range []struct {
		heading string
		dst     *float64
	}{
		{ColGini, &e.Gini},
		{ColPopulation, &e.Population},
		{ColWealth, &e.Wealth},
	} {
		v, ok := t.Value(r, m.heading)
		if !ok {
			return e, fmt.Errorf("%w: run %d has no %q", ErrMalformed, r.RunNumber, m.heading)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return e, fmt.Errorf("run %d %s: %w", r.RunNumber, m.heading, err)
		}
		*m.dst = f
	}
	return e, nil
}
