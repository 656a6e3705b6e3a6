// Population dynamics — generational turnover and capped growth.
package engine

import (
	"math"

	"github.com/talgya/nile-sim/internal/agents"
)

// generationChangeover applies the annual competency gain and counts every
// household down toward its next head.
func (s *Simulation) generationChangeover(order []*agents.Household) {
	bounds := agents.TraitBounds{
		MinCompetency: s.Config.MinCompetency,
		MinAmbition:   s.Config.MinAmbition,
		Variation:     s.Config.GenerationalVariation,
	}
	for _, h := range order {
		h.IncreaseCompetency(s.Config.AnnualCompetencyIncrease)
		if h.GenerationChangeover(s.rng, bounds) {
			s.LastStats.Changeovers++
		}
	}
}

// PopulationCeiling is the largest total population growth may reach at the
// given tick: initial × (1 + rate/100)^tick.
func (s *Simulation) PopulationCeiling(tick uint64) float64 {
	rate := s.Config.PopulationGrowthRate / 100
	return float64(s.initialPopulation) * math.Pow(1+rate, float64(tick))
}

// populationShift gives each household a coin-flip chance of one more
// worker while the total stays under the growth envelope.
func (s *Simulation) populationShift(order []*agents.Household) {
	pop := 0
	for _, h := range s.Households {
		pop += h.Workers
	}
	ceiling := s.PopulationCeiling(s.LastTick)

	for _, h := range order {
		chance := s.rng.Float()
		if float64(pop) <= ceiling && chance > 0.5 {
			h.Workers++
			pop++
			s.LastStats.Births++
		}
	}
}
