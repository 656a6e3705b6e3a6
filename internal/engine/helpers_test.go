package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/social"
	"github.com/talgya/nile-sim/internal/world"
)

// emptySim builds a simulation with no settlements and a flat, barren grid.
func emptySim(t *testing.T, mutate func(*config.Config)) *Simulation {
	t.Helper()
	cfg := config.Default()
	cfg.StartingSettlements = 0
	cfg.Seed = 1
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSimulation(cfg)
	require.NoError(t, err)
	for x := 0; x < s.Grid.Width; x++ {
		for y := 0; y < s.Grid.Height; y++ {
			s.Grid.SetFertility(world.Coord{X: x, Y: y}, 0)
		}
	}
	return s
}

// addSettlement places a settlement at pos.
func addSettlement(t *testing.T, s *Simulation, pos world.Coord) *social.Settlement {
	t.Helper()
	id := social.SettlementID(len(s.Settlements) + 1)
	st := social.NewSettlement(id, pos)
	require.NoError(t, s.Grid.Place(pos, world.Occupant{Kind: world.KindSettlement, ID: id}))
	s.Settlements = append(s.Settlements, st)
	s.SettlementIndex[id] = st
	return st
}

// addHousehold spawns one household in st with the given state.
func addHousehold(t *testing.T, s *Simulation, st *social.Settlement, workers int, grain, competency, ambition float64) *agents.Household {
	t.Helper()
	h := s.spawner.SpawnHouseholds(1, st.ID, st.Position, agents.SpawnConfig{
		Workers:       workers,
		Grain:         grain,
		MinCompetency: s.Config.MinCompetency,
		MinAmbition:   s.Config.MinAmbition,
	})[0]
	h.Competency = competency
	h.Ambition = ambition
	st.AddHousehold(h)
	s.Households = append(s.Households, h)
	s.HouseholdIndex[h.ID] = h
	return h
}

// giveField claims the cell at pos for h.
func giveField(t *testing.T, s *Simulation, h *agents.Household, pos world.Coord) *agents.Field {
	t.Helper()
	require.NoError(t, s.completeClaim(h, pos))
	return h.Fields[len(h.Fields)-1]
}
