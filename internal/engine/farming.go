// Farming and land rental — households turn fertility into grain.
package engine

import (
	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/world"
)

// harvestValue is the grain h would gross from field f this tick.
func (s *Simulation) harvestValue(h *agents.Household, f *agents.Field) float64 {
	return h.HarvestValue(
		s.Grid.Fertility(f.Position),
		world.Distance(h.Home, f.Position),
		s.Config.DistanceCost,
	)
}

// farm assigns worker pairs to h's own unharvested fields, best first.
// A pair works when the household is short of a year's food, or otherwise
// with probability ambition × competency.
func (s *Simulation) farm(h *agents.Household) {
	pairs := h.Workers / 2
	for i := 0; i < pairs && i < len(h.Fields); i++ {
		best, value := s.bestOwnedField(h)
		if best == nil {
			return
		}
		if h.Grain < h.ConsumptionNeed() || s.rng.Float() < h.Ambition*h.Competency {
			h.Grain += value - agents.SeedingCost
			best.Harvested = true
			h.WorkersWorked += 2
			s.LastStats.Harvests++
		}
	}
}

// bestOwnedField returns h's unharvested field with the highest positive
// harvest value, or nil. Ties keep the earlier-claimed field.
func (s *Simulation) bestOwnedField(h *agents.Household) (*agents.Field, float64) {
	var best *agents.Field
	bestValue := 0.0
	for _, f := range h.Fields {
		if f.Harvested {
			continue
		}
		v := s.harvestValue(h, f)
		if v > bestValue {
			best = f
			bestValue = v
		}
	}
	return best, bestValue
}

// rentLand puts h's idle worker pairs on other households' unharvested
// fields. The owner receives the rental share of the harvest; the renter
// keeps the rest and pays the seeding cost.
func (s *Simulation) rentLand(h *agents.Household) {
	spare := (h.Workers - h.WorkersWorked) / 2
	for i := 0; i < spare; i++ {
		if s.rng.Float() >= h.Competency*h.Ambition {
			continue
		}
		f, value := s.bestRentableField(h)
		if f == nil {
			return
		}
		owner, ok := s.HouseholdIndex[f.OwnerID]
		if !ok {
			return
		}

		ownerShare := value * s.Config.LandRentalRate
		// Renter share is the remainder so that the two shares sum to value exactly.
		h.Grain += (value - ownerShare) - agents.SeedingCost
		owner.Grain += ownerShare
		f.MarkHarvested()
		h.WorkersWorked += 2
		s.LastStats.Rentals++
	}
}

// bestRentableField scans h's knowledge window in claim order for the
// unharvested field owned by someone else with the highest positive value.
func (s *Simulation) bestRentableField(h *agents.Household) (*agents.Field, float64) {
	win := s.Grid.KnowledgeWindow(h.Home, s.Config.KnowledgeRadius)
	var best *agents.Field
	bestValue := 0.0

	for x := win.MinX; x < win.MaxX; x++ {
		for y := win.MinY; y < win.MaxY; y++ {
			c := world.Coord{X: x, Y: y}
			if !s.withinKnowledge(h.Home, c) {
				continue
			}
			occ := s.Grid.Occupant(c)
			if occ.Kind != world.KindField {
				continue
			}
			f, ok := s.FieldIndex[occ.ID]
			if !ok || f.Harvested || f.OwnerID == h.ID {
				continue
			}
			v := s.harvestValue(h, f)
			if v > bestValue {
				best = f
				bestValue = v
			}
		}
	}
	return best, bestValue
}
