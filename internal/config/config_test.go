package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 31, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
	assert.Equal(t, 14*7*5, cfg.InitialPopulation())
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, "width"},
		{"competency floor above 1", func(c *Config) { c.MinCompetency = 1.5 }, "min_competency"},
		{"negative ambition floor", func(c *Config) { c.MinAmbition = -0.1 }, "min_ambition"},
		{"negative grain", func(c *Config) { c.StartingGrain = -1 }, "starting_grain"},
		{"rental rate above 1", func(c *Config) { c.LandRentalRate = 2 }, "land_rental_rate"},
		{"negative fallow limit", func(c *Config) { c.FallowLimit = -1 }, "fallow_limit"},
		{"variation above 1", func(c *Config) { c.GenerationalVariation = 1.5 }, "generational_variation"},
		{"infinite variation", func(c *Config) { c.GenerationalVariation = math.Inf(1) }, "generational_variation"},
		{"infinite grain", func(c *Config) { c.StartingGrain = math.Inf(1) }, "starting_grain"},
		{"NaN distance cost", func(c *Config) { c.DistanceCost = math.NaN() }, "distance_cost"},
		{"infinite growth rate", func(c *Config) { c.PopulationGrowthRate = math.Inf(1) }, "population_growth_rate"},
		{"infinite competency increase", func(c *Config) { c.AnnualCompetencyIncrease = math.Inf(1) }, "annual_competency_increase"},
		{"negative infinite rental rate", func(c *Config) { c.LandRentalRate = math.Inf(-1) }, "land_rental_rate"},
		{"too many settlements", func(c *Config) { c.Width, c.Height, c.StartingSettlements = 2, 2, 5 }, "starting_settlements"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))

			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			require.NotEmpty(t, cerr.Problems)
			assert.Contains(t, cerr.Problems[0], tt.field)
		})
	}
}

func TestValidateAcceptsEdges(t *testing.T) {
	cfg := Default()
	cfg.StartingSettlements = 0
	cfg.StartingHouseholds = 0
	cfg.MinCompetency = 1
	cfg.MinAmbition = 1
	cfg.KnowledgeRadius = 0
	cfg.Width, cfg.Height = 1, 1
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
width: 20
height: 10
starting_settlements: 3
allow_rental: true
land_rental_rate: 0.3
seed: 77
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
	assert.Equal(t, 3, cfg.StartingSettlements)
	assert.True(t, cfg.AllowRental)
	assert.Equal(t, 0.3, cfg.LandRentalRate)
	assert.Equal(t, int64(77), cfg.Seed)
	// Untouched keys keep their defaults.
	assert.Equal(t, 7, cfg.StartingHouseholds)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "widht: 20\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRejectsInvalidValue(t *testing.T) {
	_, err := Load(writeConfig(t, "min_ambition: 3\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("NILESIM_WIDTH", "40")
	t.Setenv("NILESIM_ALLOW_RENTAL", "true")
	t.Setenv("NILESIM_SEED", "5")

	cfg, err := Load(writeConfig(t, "width: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.True(t, cfg.AllowRental)
	assert.Equal(t, int64(5), cfg.Seed)
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("NILESIM_HEIGHT", "tall")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNonFiniteFromEnvAndYAML(t *testing.T) {
	t.Setenv("NILESIM_GENERATIONAL_VARIATION", "Inf")
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg))
	assert.True(t, math.IsInf(cfg.GenerationalVariation, 1))
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generational_variation must be a finite number")

	path := writeConfig(t, "distance_cost: .inf\n")
	t.Setenv("NILESIM_GENERATIONAL_VARIATION", "0.5")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "distance_cost")
}
