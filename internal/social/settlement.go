// Package social provides settlements: fixed spatial anchors that group
// households and report derived totals.
package social

import (
	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/world"
)

// SettlementID is a unique identifier for a settlement.
type SettlementID = uint64

// Settlement groups households at a fixed grid position. It holds no
// resources of its own: workers and grain are always summed on demand.
type Settlement struct {
	ID       SettlementID `json:"id"`
	Name     string       `json:"name"`
	Position world.Coord  `json:"position"`

	Households []*agents.Household `json:"-"`
}

// NewSettlement creates a settlement with no households.
func NewSettlement(id SettlementID, pos world.Coord) *Settlement {
	return &Settlement{
		ID:       id,
		Name:     world.SettlementName(id),
		Position: pos,
	}
}

// Workers returns the total workers across current households.
func (s *Settlement) Workers() int {
	n := 0
	for _, h := range s.Households {
		n += h.Workers
	}
	return n
}

// Grain returns the total grain across current households.
func (s *Settlement) Grain() float64 {
	total := 0.0
	for _, h := range s.Households {
		total += h.Grain
	}
	return total
}

// Active reports whether any household remains.
func (s *Settlement) Active() bool {
	return len(s.Households) > 0
}

// AddHousehold appends a household to the settlement.
func (s *Settlement) AddHousehold(h *agents.Household) {
	s.Households = append(s.Households, h)
}

// RemoveHousehold drops a household, preserving the order of the rest.
// Returns false if it was not a member.
func (s *Settlement) RemoveHousehold(id agents.HouseholdID) bool {
	for i, h := range s.Households {
		if h.ID == id {
			s.Households = append(s.Households[:i], s.Households[i+1:]...)
			return true
		}
	}
	return false
}
