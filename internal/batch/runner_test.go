package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/persistence"
	"github.com/talgya/nile-sim/internal/stats"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.StartingSettlements = 4
	cfg.StartingHouseholds = 3
	return cfg
}

func TestSeedSweep(t *testing.T) {
	jobs := SeedSweep(smallConfig(), 5, 12, 77)
	require.Len(t, jobs, 5)

	seeds := map[int64]bool{}
	for i, j := range jobs {
		assert.Equal(t, 12, j.Steps)
		assert.NotZero(t, j.Config.Seed)
		assert.False(t, seeds[j.Config.Seed])
		seeds[j.Config.Seed] = true
		assert.Equal(t, fmt.Sprintf("seed-%d", i), j.Label)
	}
	assert.Equal(t, jobs, SeedSweep(smallConfig(), 5, 12, 77))
}

func TestRunnerParallelMatchesSerial(t *testing.T) {
	jobs := SeedSweep(smallConfig(), 6, 30, 2024)

	serial, err := (&Runner{Workers: 1}).Run(context.Background(), jobs)
	require.NoError(t, err)
	parallel, err := (&Runner{Workers: 4}).Run(context.Background(), jobs)
	require.NoError(t, err)

	require.Len(t, parallel, len(jobs))
	for i := range jobs {
		assert.Equal(t, i, parallel[i].Index)
		assert.Equal(t, jobs[i].Label, parallel[i].Label)
		assert.Equal(t, jobs[i].Config.Seed, parallel[i].Config.Seed)
		assert.Equal(t, serial[i].History, parallel[i].History)
		assert.Len(t, parallel[i].History, 31)
		assert.NoError(t, parallel[i].Err)
		assert.NotEqual(t, serial[i].RunID, parallel[i].RunID)
	}
}

func TestRunnerMatchesDirectRun(t *testing.T) {
	jobs := SeedSweep(smallConfig(), 1, 15, 9)
	results, err := (&Runner{}).Run(context.Background(), jobs)
	require.NoError(t, err)

	sim, err := engine.NewSimulation(jobs[0].Config)
	require.NoError(t, err)
	require.NoError(t, sim.Run(15))
	assert.Equal(t, sim.History(), results[0].History)
	assert.Equal(t, sim.Snapshot(), results[0].Final())
}

func TestRunnerStoresResults(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	defer db.Close()

	var mu sync.Mutex
	steps := map[string]int{}
	var finished []Result
	r := &Runner{
		Workers: 3,
		DB:      db,
		OnStep: func(runID string, _ *engine.Simulation, _ stats.Snapshot) {
			mu.Lock()
			steps[runID]++
			mu.Unlock()
		},
		OnResult: func(res Result) {
			mu.Lock()
			finished = append(finished, res)
			mu.Unlock()
		},
	}
	results, err := r.Run(context.Background(), SeedSweep(smallConfig(), 3, 10, 5))
	require.NoError(t, err)
	assert.Len(t, finished, 3)

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	for _, res := range results {
		assert.Equal(t, 10, steps[res.RunID])

		stored, err := db.GetRun(res.RunID)
		require.NoError(t, err)
		assert.Equal(t, res.Record(), stored)
		assert.Equal(t, res.Final().TotalPopulation, stored.FinalPopulation)

		history, err := db.RunHistory(res.RunID)
		require.NoError(t, err)
		assert.Equal(t, res.History, history)
	}
}

func TestRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.FallowLimit = -1
	_, err := (&Runner{Workers: 2}).Run(context.Background(), []Job{{Label: "bad", Config: cfg, Steps: 5}})
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Runner{Workers: 2}).Run(ctx, SeedSweep(smallConfig(), 4, 1000, 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestEmptyResult(t *testing.T) {
	assert.Equal(t, stats.Snapshot{}, Result{}.Final())
}
