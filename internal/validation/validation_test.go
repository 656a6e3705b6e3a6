package validation

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nile-sim/internal/batch"
	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/engine"
)

const sampleTable = `"BehaviorSpace results (NetLogo 6.0.4)"
"egypt.nlogo"
"experiment"
"01/02/2020 10:00:00:000 +0000"
"min-pxcor","max-pxcor","min-pycor","max-pycor"
"0","30","0","29"
"[run number]","starting-settlements","starting-households","starting-household-size","starting-grain","land-rental-rate","allow-land-rental?","knowledge-radius","[step]","gini-index-reserve / total-households / 0.5","total-population","total-grain"
"2","6","4","5","2000","40","true","3","4","0.31","118","30500.5"
"1","5","3","4","1500","50","false","5.0","0","0","60","22500"
"1","5","3","4","1500","50","false","5.0","4","0.25","61","19000"
`

func readSample(t *testing.T) *Table {
	t.Helper()
	tbl, err := ReadTable(strings.NewReader(sampleTable))
	require.NoError(t, err)
	return tbl
}

func TestReadTable(t *testing.T) {
	tbl := readSample(t)
	assert.Equal(t, 31, tbl.Width)
	assert.Equal(t, 30, tbl.Height)
	assert.Equal(t, "31x30 inclusive", tbl.GridExtent())
	assert.Equal(t, 8, tbl.StepColumn())

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 1, tbl.Rows[0].RunNumber)
	assert.Equal(t, 4, tbl.Rows[0].Step)
	assert.Equal(t, 2, tbl.Rows[1].RunNumber)

	v, ok := tbl.Value(tbl.Rows[0], ColPopulation)
	require.True(t, ok)
	assert.Equal(t, "61", v)
	_, ok = tbl.Value(tbl.Rows[0], "no-such-column")
	assert.False(t, ok)
}

func TestReadTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleTable), 0o644))
	tbl, err := ReadTableFile(path)
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)

	_, err = ReadTableFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestReadTableMalformed(t *testing.T) {
	lines := strings.Split(sampleTable, "\n")
	tests := map[string]string{
		"too short":  strings.Join(lines[:4], "\n"),
		"bad bounds": strings.Join(append(append(append([]string{}, lines[:5]...), `"a","b","c","d"`), lines[6:]...), "\n"),
		"no step":    strings.Replace(sampleTable, `"[step]"`, `"tick"`, 1),
		"bad run":    strings.Replace(sampleTable, `"2","6"`, `"x","6"`, 1),
		"bad step":   strings.Replace(sampleTable, `"3","4","0.31"`, `"3","four","0.31"`, 1),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(in))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestConfigFromRow(t *testing.T) {
	tbl := readSample(t)
	base := config.Default()
	base.Seed = 3

	cfg, err := tbl.Config(tbl.Rows[1], base)
	require.NoError(t, err)
	assert.Equal(t, 31, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
	assert.Equal(t, 6, cfg.StartingSettlements)
	assert.Equal(t, 4, cfg.StartingHouseholds)
	assert.Equal(t, 5, cfg.StartingHouseholdSize)
	assert.Equal(t, 2000.0, cfg.StartingGrain)
	assert.InDelta(t, 0.4, cfg.LandRentalRate, 1e-12)
	assert.True(t, cfg.AllowRental)
	assert.Equal(t, 3, cfg.KnowledgeRadius)
	// Untouched parameters come from base.
	assert.Equal(t, base.FallowLimit, cfg.FallowLimit)
	assert.Equal(t, base.MinCompetency, cfg.MinCompetency)
	assert.Equal(t, int64(3), cfg.Seed)
	require.NoError(t, cfg.Validate())

	cfg, err = tbl.Config(tbl.Rows[0], base)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.KnowledgeRadius)
	assert.False(t, cfg.AllowRental)
}

func TestExpected(t *testing.T) {
	tbl := readSample(t)
	e, err := tbl.Expected(tbl.Rows[1])
	require.NoError(t, err)
	assert.Equal(t, Expected{Gini: 0.31, Population: 118, Wealth: 30500.5}, e)

	bad := tbl.Rows[1]
	bad.Values = bad.Values[:10]
	_, err = tbl.Expected(bad)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRelativeError(t *testing.T) {
	assert.InDelta(t, 0.1, RelativeError(110, 100), 1e-12)
	assert.InDelta(t, -0.5, RelativeError(50, 100), 1e-12)
	assert.Zero(t, RelativeError(0, 0))
	assert.True(t, math.IsInf(RelativeError(3, 0), 1))
	assert.True(t, math.IsInf(RelativeError(-3, 0), -1))
}

func TestCompareReplaysRows(t *testing.T) {
	tbl := readSample(t)
	base := config.Default()
	base.Seed = 8

	cs, err := Compare(context.Background(), &batch.Runner{Workers: 2}, tbl, base)
	require.NoError(t, err)
	require.Len(t, cs, 2)

	for i, c := range cs {
		assert.Equal(t, tbl.Rows[i], c.Row)
		assert.Equal(t, int64(8), c.Seed)
		assert.NoError(t, c.Err)

		cfg, err := tbl.Config(c.Row, base)
		require.NoError(t, err)
		sim, err := engine.NewSimulation(cfg)
		require.NoError(t, err)
		require.NoError(t, sim.Run(c.Row.Step))
		assert.Equal(t, float64(sim.TotalPopulation()), c.Observed.Population)
		assert.InDelta(t, sim.TotalWealth(), c.Observed.Wealth, 1e-9)
		assert.InDelta(t, sim.Gini(), c.Observed.Gini, 1e-12)
	}
	assert.Equal(t, 118.0, cs[1].Expected.Population)

	recs := Records("v", cs)
	require.Len(t, recs, 6)
	assert.Equal(t, MetricGini, recs[0].Metric)
	assert.Equal(t, MetricWealth, recs[5].Metric)
	assert.Equal(t, 2, recs[5].RunNumber)
	assert.Equal(t, StorageLossPasses, recs[3].StorageLossPasses)
	assert.InDelta(t, RelativeError(cs[1].Observed.Population, 118), recs[4].RelativeError, 1e-12)
}

func TestWriteCSV(t *testing.T) {
	tbl := readSample(t)
	cs := []Comparison{{
		Row:      tbl.Rows[0],
		Observed: Expected{Gini: 0.5, Population: 66, Wealth: 19000},
		Expected: Expected{Gini: 0.25, Population: 61, Wealth: 19000},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, cs))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header := records[0]
	assert.Equal(t, tbl.Headings[:9], header[:9])
	assert.Equal(t, OutputHeadings, header[9:])

	row := records[1]
	require.Len(t, row, len(header))
	assert.Equal(t, "1", row[0])
	assert.Equal(t, "4", row[8])
	assert.Equal(t, "0.5", row[9])
	assert.Equal(t, "0.25", row[10])
	assert.Equal(t, "1", row[15]) // gini relative error
	assert.Equal(t, "0", row[17]) // wealth relative error
	assert.Equal(t, "1", row[18]) // storage loss passes
	assert.Equal(t, "31x30 inclusive", row[19])
	assert.Equal(t, "", row[20])
}
