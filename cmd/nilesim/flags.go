package main

import (
	"github.com/spf13/pflag"

	"github.com/talgya/nile-sim/internal/config"
)

// configFlags exposes every config field as a flag. Flags override the
// YAML file and the environment, but only when set explicitly.
type configFlags struct {
	path string
	cfg  config.Config
}

type flagBinding struct {
	name  string
	apply func(dst, src *config.Config)
}

var configBindings = []flagBinding{
	{"width", func(d, s *config.Config) { d.Width = s.Width }},
	{"height", func(d, s *config.Config) { d.Height = s.Height }},
	{"settlements", func(d, s *config.Config) { d.StartingSettlements = s.StartingSettlements }},
	{"households", func(d, s *config.Config) { d.StartingHouseholds = s.StartingHouseholds }},
	{"household-size", func(d, s *config.Config) { d.StartingHouseholdSize = s.StartingHouseholdSize }},
	{"grain", func(d, s *config.Config) { d.StartingGrain = s.StartingGrain }},
	{"min-competency", func(d, s *config.Config) { d.MinCompetency = s.MinCompetency }},
	{"min-ambition", func(d, s *config.Config) { d.MinAmbition = s.MinAmbition }},
	{"growth-rate", func(d, s *config.Config) { d.PopulationGrowthRate = s.PopulationGrowthRate }},
	{"variation", func(d, s *config.Config) { d.GenerationalVariation = s.GenerationalVariation }},
	{"knowledge-radius", func(d, s *config.Config) { d.KnowledgeRadius = s.KnowledgeRadius }},
	{"fallow-limit", func(d, s *config.Config) { d.FallowLimit = s.FallowLimit }},
	{"distance-cost", func(d, s *config.Config) { d.DistanceCost = s.DistanceCost }},
	{"rental-rate", func(d, s *config.Config) { d.LandRentalRate = s.LandRentalRate }},
	{"rental", func(d, s *config.Config) { d.AllowRental = s.AllowRental }},
	{"competency-increase", func(d, s *config.Config) { d.AnnualCompetencyIncrease = s.AnnualCompetencyIncrease }},
	{"flood-roughness", func(d, s *config.Config) { d.FloodRoughness = s.FloodRoughness }},
	{"circular-knowledge", func(d, s *config.Config) { d.CircularKnowledge = s.CircularKnowledge }},
	{"seed", func(d, s *config.Config) { d.Seed = s.Seed }},
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	def := config.Default()
	c := &f.cfg

	fs.StringVar(&f.path, "config", "", "YAML config file")
	fs.IntVar(&c.Width, "width", def.Width, "grid width")
	fs.IntVar(&c.Height, "height", def.Height, "grid height")
	fs.IntVar(&c.StartingSettlements, "settlements", def.StartingSettlements, "starting settlements")
	fs.IntVar(&c.StartingHouseholds, "households", def.StartingHouseholds, "starting households per settlement")
	fs.IntVar(&c.StartingHouseholdSize, "household-size", def.StartingHouseholdSize, "starting workers per household")
	fs.Float64Var(&c.StartingGrain, "grain", def.StartingGrain, "starting grain per household")
	fs.Float64Var(&c.MinCompetency, "min-competency", def.MinCompetency, "competency floor")
	fs.Float64Var(&c.MinAmbition, "min-ambition", def.MinAmbition, "ambition floor")
	fs.Float64Var(&c.PopulationGrowthRate, "growth-rate", def.PopulationGrowthRate, "population growth rate (percent per year)")
	fs.Float64Var(&c.GenerationalVariation, "variation", def.GenerationalVariation, "generational trait variation")
	fs.IntVar(&c.KnowledgeRadius, "knowledge-radius", def.KnowledgeRadius, "land knowledge radius")
	fs.IntVar(&c.FallowLimit, "fallow-limit", def.FallowLimit, "years a field may lie fallow")
	fs.Float64Var(&c.DistanceCost, "distance-cost", def.DistanceCost, "grain cost per unit distance to a field")
	fs.Float64Var(&c.LandRentalRate, "rental-rate", def.LandRentalRate, "owner's share of a rented harvest")
	fs.BoolVar(&c.AllowRental, "rental", def.AllowRental, "allow land rental")
	fs.Float64Var(&c.AnnualCompetencyIncrease, "competency-increase", def.AnnualCompetencyIncrease, "annual competency increase (percent)")
	fs.Float64Var(&c.FloodRoughness, "flood-roughness", def.FloodRoughness, "per-cell flood noise amplitude [0,1]")
	fs.BoolVar(&c.CircularKnowledge, "circular-knowledge", def.CircularKnowledge, "limit land search to a circle")
	fs.Int64Var(&c.Seed, "seed", def.Seed, "random seed (0 = random)")
}

// load layers defaults, YAML, environment, then explicitly set flags, and
// validates the result.
func (f *configFlags) load(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.path)
	if err != nil {
		return cfg, err
	}
	for _, b := range configBindings {
		if fs.Changed(b.name) {
			b.apply(&cfg, &f.cfg)
		}
	}
	return cfg, cfg.Validate()
}
