// Consumption, starvation, and household extinction.
package engine

import (
	"fmt"

	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/world"
)

// consume feeds h's workers. A shortfall costs one worker; a household left
// with none is removed in the same call.
func (s *Simulation) consume(h *agents.Household) error {
	if !h.ConsumeGrain() {
		return nil
	}
	s.LastStats.Starvations++
	if h.Workers > 0 {
		return nil
	}
	return s.removeHousehold(h)
}

// removeHousehold releases every field h owns and drops it from its
// settlement and from the global collection.
func (s *Simulation) removeHousehold(h *agents.Household) error {
	fields := append([]*agents.Field(nil), h.Fields...)
	for _, f := range fields {
		if err := s.releaseField(f); err != nil {
			return err
		}
	}
	h.Fields = nil

	sett, ok := s.SettlementIndex[h.SettlementID]
	if !ok || !sett.RemoveHousehold(h.ID) {
		return fmt.Errorf("household %d missing from settlement %d", h.ID, h.SettlementID)
	}
	for i, other := range s.Households {
		if other.ID == h.ID {
			s.Households = append(s.Households[:i], s.Households[i+1:]...)
			break
		}
	}
	delete(s.HouseholdIndex, h.ID)

	s.LastStats.Extinctions++
	s.addEvent("extinction", "household %d of %s died out", h.ID, sett.Name)
	if !sett.Active() {
		s.addEvent("extinction", "%s has no households left", sett.Name)
	}
	return nil
}

// releaseField removes f from its owner, the global list, and the grid.
func (s *Simulation) releaseField(f *agents.Field) error {
	if owner, ok := s.HouseholdIndex[f.OwnerID]; ok {
		owner.RemoveField(f.ID)
	}
	for i, other := range s.Fields {
		if other.ID == f.ID {
			s.Fields = append(s.Fields[:i], s.Fields[i+1:]...)
			break
		}
	}
	delete(s.FieldIndex, f.ID)
	s.LastStats.FieldsReleased++
	return s.Grid.Remove(f.Position, world.Occupant{Kind: world.KindField, ID: f.ID})
}
