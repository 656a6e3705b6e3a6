// Package config holds the run parameters of a simulation, their defaults,
// and layered loading: defaults, then a YAML file, then NILESIM_* environment
// variables. Every loaded config is validated before a model may be built.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "NILESIM_"

// Config holds every construction parameter of a simulation run.
type Config struct {
	Width  int `yaml:"width" env:"WIDTH" json:"width" validate:"gte=1"`
	Height int `yaml:"height" env:"HEIGHT" json:"height" validate:"gte=1"`

	StartingSettlements   int     `yaml:"starting_settlements" env:"STARTING_SETTLEMENTS" json:"starting_settlements" validate:"gte=0"`
	StartingHouseholds    int     `yaml:"starting_households" env:"STARTING_HOUSEHOLDS" json:"starting_households" validate:"gte=0"`
	StartingHouseholdSize int     `yaml:"starting_household_size" env:"STARTING_HOUSEHOLD_SIZE" json:"starting_household_size" validate:"gte=0"`
	StartingGrain         float64 `yaml:"starting_grain" env:"STARTING_GRAIN" json:"starting_grain" validate:"finite,gte=0"`

	MinCompetency float64 `yaml:"min_competency" env:"MIN_COMPETENCY" json:"min_competency" validate:"finite,gte=0,lte=1"`
	MinAmbition   float64 `yaml:"min_ambition" env:"MIN_AMBITION" json:"min_ambition" validate:"finite,gte=0,lte=1"`

	// PopulationGrowthRate is a percentage per year, like the reference
	// model's pop-growth-rate slider.
	PopulationGrowthRate  float64 `yaml:"population_growth_rate" env:"POPULATION_GROWTH_RATE" json:"population_growth_rate" validate:"finite,gte=0"`
	GenerationalVariation float64 `yaml:"generational_variation" env:"GENERATIONAL_VARIATION" json:"generational_variation" validate:"finite,gte=0,lte=1"`

	KnowledgeRadius int     `yaml:"knowledge_radius" env:"KNOWLEDGE_RADIUS" json:"knowledge_radius" validate:"gte=0"`
	FallowLimit     int     `yaml:"fallow_limit" env:"FALLOW_LIMIT" json:"fallow_limit" validate:"gte=0"`
	DistanceCost    float64 `yaml:"distance_cost" env:"DISTANCE_COST" json:"distance_cost" validate:"finite,gte=0"`

	LandRentalRate float64 `yaml:"land_rental_rate" env:"LAND_RENTAL_RATE" json:"land_rental_rate" validate:"finite,gte=0,lte=1"`
	AllowRental    bool    `yaml:"allow_rental" env:"ALLOW_RENTAL" json:"allow_rental"`

	// AnnualCompetencyIncrease is a percentage applied every year; 0 disables it.
	AnnualCompetencyIncrease float64 `yaml:"annual_competency_increase" env:"ANNUAL_COMPETENCY_INCREASE" json:"annual_competency_increase" validate:"finite,gte=0"`
	// FloodRoughness perturbs individual cells around the column profile; 0
	// keeps every column uniform.
	FloodRoughness float64 `yaml:"flood_roughness" env:"FLOOD_ROUGHNESS" json:"flood_roughness" validate:"finite,gte=0,lte=1"`
	// CircularKnowledge additionally limits land search to Euclidean distance
	// KnowledgeRadius instead of the full square.
	CircularKnowledge bool `yaml:"circular_knowledge" env:"CIRCULAR_KNOWLEDGE" json:"circular_knowledge"`

	// Seed for the run's random stream; 0 draws one from crypto/rand.
	Seed int64 `yaml:"seed" env:"SEED" json:"seed"`
}

// Default returns the reference model's interface defaults.
func Default() Config {
	return Config{
		Width:                    31,
		Height:                   30,
		StartingSettlements:      14,
		StartingHouseholds:       7,
		StartingHouseholdSize:    5,
		StartingGrain:            3000,
		MinCompetency:            0.5,
		MinAmbition:              0.1,
		PopulationGrowthRate:     0.1,
		GenerationalVariation:    0.9,
		KnowledgeRadius:          5,
		FallowLimit:              4,
		DistanceCost:             10,
		LandRentalRate:           0.5,
		AllowRental:              false,
		AnnualCompetencyIncrease: 0,
		FloodRoughness:           0,
	}
}

// InitialPopulation is the worker count at construction.
func (c Config) InitialPopulation() int {
	return c.StartingSettlements * c.StartingHouseholds * c.StartingHouseholdSize
}

// Load builds a config from defaults, an optional YAML file, and the
// environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decodeYAML overlays raw onto cfg. Unknown keys are rejected so that a typo
// cannot silently fall back to a default.
func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Problems: []string{fmt.Sprintf("config.yaml: %v", err)}}
	}
	return nil
}

// ApplyEnv overlays NILESIM_* environment variables onto cfg. Variables that
// are not set leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return &Error{Problems: []string{fmt.Sprintf("parse env: %v", err)}}
	}
	return nil
}
