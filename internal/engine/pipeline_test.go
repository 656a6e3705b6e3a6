package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/world"
)

func radius(r int) func(*config.Config) {
	return func(c *config.Config) { c.KnowledgeRadius = r }
}

func TestClaimPicksMostFertileFreeCell(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)

	s.Grid.SetFertility(world.Coord{X: 3, Y: 3}, 0.4)
	s.Grid.SetFertility(world.Coord{X: 5, Y: 2}, 0.9)

	require.NoError(t, s.claimFields(h))
	require.Len(t, h.Fields, 1)
	assert.Equal(t, world.Coord{X: 5, Y: 2}, h.Fields[0].Position)
	assert.Equal(t, h.ID, h.Fields[0].OwnerID)
	assert.Equal(t, 1, s.LastStats.Claims)
	require.NoError(t, s.CheckInvariants())
}

func TestClaimTieGoesToFirstColumn(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)

	// Row-major order would meet (5,3) first; columns are scanned first.
	s.Grid.SetFertility(world.Coord{X: 3, Y: 5}, 0.7)
	s.Grid.SetFertility(world.Coord{X: 5, Y: 3}, 0.7)

	best, f := s.bestFreeCell(st.Position)
	assert.Equal(t, world.Coord{X: 3, Y: 5}, best)
	assert.InDelta(t, 0.7, f, 1e-12)

	require.NoError(t, s.claimFields(h))
	assert.Equal(t, world.Coord{X: 3, Y: 5}, h.Fields[0].Position)
}

func TestClaimSkipsOccupiedAndOutsideWindow(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	a := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)
	b := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)

	s.Grid.SetFertility(world.Coord{X: 4, Y: 3}, 0.9)
	s.Grid.SetFertility(world.Coord{X: 2, Y: 2}, 0.5)
	// Upper edge of the window is exclusive.
	s.Grid.SetFertility(world.Coord{X: 6, Y: 4}, 1.0)
	s.Grid.SetFertility(world.Coord{X: 4, Y: 6}, 1.0)

	giveField(t, s, a, world.Coord{X: 4, Y: 3})
	require.NoError(t, s.claimFields(b))
	require.Len(t, b.Fields, 1)
	assert.Equal(t, world.Coord{X: 2, Y: 2}, b.Fields[0].Position)
}

func TestNoClaimOnBarrenLand(t *testing.T) {
	s := emptySim(t, radius(3))
	st := addSettlement(t, s, world.Coord{X: 10, Y: 10})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 1)

	require.NoError(t, s.claimFields(h))
	assert.Empty(t, h.Fields)
	assert.Empty(t, s.Fields)
	assert.Zero(t, s.LastStats.Claims)
}

func TestClaimNeedsAmbitionBeyondSecondField(t *testing.T) {
	s := emptySim(t, radius(3))
	st := addSettlement(t, s, world.Coord{X: 10, Y: 10})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0)
	for x := 8; x < 13; x++ {
		s.Grid.SetFertility(world.Coord{X: x, Y: 9}, 0.5)
	}

	// Up to two fields are claimed regardless of ambition.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.claimFields(h))
	}
	assert.Len(t, h.Fields, 2)
}

func TestCircularKnowledgeDropsCorners(t *testing.T) {
	s := emptySim(t, func(c *config.Config) {
		c.KnowledgeRadius = 3
		c.CircularKnowledge = true
	})
	home := world.Coord{X: 10, Y: 10}
	addSettlement(t, s, home)
	s.Grid.SetFertility(world.Coord{X: 7, Y: 7}, 0.9)
	s.Grid.SetFertility(world.Coord{X: 9, Y: 8}, 0.3)

	best, _ := s.bestFreeCell(home)
	assert.Equal(t, world.Coord{X: 9, Y: 8}, best)

	s.Config.CircularKnowledge = false
	best, _ = s.bestFreeCell(home)
	assert.Equal(t, world.Coord{X: 7, Y: 7}, best)
}

func TestFarmHarvest(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 2, 0, 0.8, 0.5)
	f := giveField(t, s, h, world.Coord{X: 4, Y: 5})
	s.Grid.SetFertility(f.Position, 0.5)

	assert.InDelta(t, 980, s.harvestValue(h, f), 1e-9)

	// Short of food, so the pair always works.
	s.farm(h)
	assert.InDelta(t, 980-agents.SeedingCost, h.Grain, 1e-9)
	assert.InDelta(t, 670.625, h.Grain, 1e-9)
	assert.True(t, f.Harvested)
	assert.Equal(t, 2, h.WorkersWorked)
	assert.Equal(t, 1, s.LastStats.Harvests)
}

func TestFarmEachFieldOnce(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 6, 0, 1, 1)
	near := giveField(t, s, h, world.Coord{X: 4, Y: 5})
	far := giveField(t, s, h, world.Coord{X: 2, Y: 2})
	s.Grid.SetFertility(near.Position, 0.3)
	s.Grid.SetFertility(far.Position, 0.6)

	s.farm(h)
	assert.True(t, near.Harvested)
	assert.True(t, far.Harvested)
	assert.Equal(t, 4, h.WorkersWorked)
	assert.Equal(t, 2, s.LastStats.Harvests)
}

func TestFarmSkipsUnprofitableField(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 2, 0, 1, 1)
	f := giveField(t, s, h, world.Coord{X: 2, Y: 2})
	s.Grid.SetFertility(f.Position, 0.001)

	s.farm(h)
	assert.False(t, f.Harvested)
	assert.Zero(t, h.Grain)
	assert.Zero(t, h.WorkersWorked)
}

func TestFarmNeedsAPair(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 1, 0, 1, 1)
	f := giveField(t, s, h, world.Coord{X: 4, Y: 5})
	s.Grid.SetFertility(f.Position, 1)

	s.farm(h)
	assert.False(t, f.Harvested)
	assert.Zero(t, h.Grain)
}

func TestRentalConservesHarvest(t *testing.T) {
	s := emptySim(t, func(c *config.Config) {
		c.KnowledgeRadius = 2
		c.AllowRental = true
		c.LandRentalRate = 0.5
	})
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	owner := addHousehold(t, s, st, 2, 100, 1, 1)
	renter := addHousehold(t, s, st, 2, 100, 1, 1)
	f := giveField(t, s, owner, world.Coord{X: 4, Y: 5})
	s.Grid.SetFertility(f.Position, 0.5)

	value := s.harvestValue(renter, f)
	require.InDelta(t, 1227.5, value, 1e-9)

	s.rentLand(renter)
	assert.True(t, f.Harvested)
	assert.Equal(t, 2, renter.WorkersWorked)
	assert.Equal(t, 1, s.LastStats.Rentals)
	assert.InDelta(t, 100+613.75, owner.Grain, 1e-9)
	assert.InDelta(t, 100+613.75-agents.SeedingCost, renter.Grain, 1e-9)

	delta := (owner.Grain - 100) + (renter.Grain - 100)
	assert.InDelta(t, value-agents.SeedingCost, delta, 1e-9)

	// Ownership does not change hands.
	assert.Equal(t, owner.ID, f.OwnerID)
	assert.Empty(t, renter.Fields)
}

func TestRentalIgnoresOwnAndHarvestedFields(t *testing.T) {
	s := emptySim(t, func(c *config.Config) {
		c.KnowledgeRadius = 2
		c.AllowRental = true
	})
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	a := addHousehold(t, s, st, 4, 0, 1, 1)
	b := addHousehold(t, s, st, 4, 0, 1, 1)
	own := giveField(t, s, a, world.Coord{X: 4, Y: 5})
	done := giveField(t, s, b, world.Coord{X: 3, Y: 3})
	s.Grid.SetFertility(own.Position, 0.9)
	s.Grid.SetFertility(done.Position, 0.9)
	done.MarkHarvested()

	s.rentLand(a)
	assert.Zero(t, s.LastStats.Rentals)
	assert.Zero(t, a.Grain)
	assert.Zero(t, b.Grain)
}

func TestRentalUsesOnlyIdlePairs(t *testing.T) {
	s := emptySim(t, func(c *config.Config) {
		c.KnowledgeRadius = 2
		c.AllowRental = true
	})
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	owner := addHousehold(t, s, st, 2, 0, 1, 1)
	renter := addHousehold(t, s, st, 3, 0, 1, 1)
	f := giveField(t, s, owner, world.Coord{X: 4, Y: 5})
	s.Grid.SetFertility(f.Position, 0.9)
	renter.WorkersWorked = 2

	s.rentLand(renter)
	assert.False(t, f.Harvested)
	assert.Zero(t, s.LastStats.Rentals)
}

func TestConsumeAndExtinction(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	rich := addHousehold(t, s, st, 3, 1000, 0.8, 0.5)
	poor := addHousehold(t, s, st, 1, 100, 0.8, 0.5)
	f1 := giveField(t, s, poor, world.Coord{X: 3, Y: 3})
	f2 := giveField(t, s, poor, world.Coord{X: 5, Y: 5})

	require.NoError(t, s.consume(rich))
	assert.Equal(t, 3, rich.Workers)
	assert.InDelta(t, 520, rich.Grain, 1e-9)

	require.NoError(t, s.consume(poor))
	assert.Zero(t, poor.Workers)
	assert.Zero(t, poor.Grain)
	assert.Equal(t, 1, s.LastStats.Starvations)
	assert.Equal(t, 1, s.LastStats.Extinctions)
	assert.Equal(t, 2, s.LastStats.FieldsReleased)

	assert.NotContains(t, s.HouseholdIndex, poor.ID)
	assert.Len(t, s.Households, 1)
	assert.Len(t, st.Households, 1)
	assert.Empty(t, s.Fields)
	assert.True(t, s.Grid.IsEmpty(f1.Position))
	assert.True(t, s.Grid.IsEmpty(f2.Position))
	require.NotEmpty(t, s.Events)
	assert.Equal(t, "extinction", s.Events[len(s.Events)-1].Category)
	require.NoError(t, s.CheckInvariants())
	assert.Equal(t, 1, s.ActiveSettlements())
}

func TestLastHouseholdLeavesSettlementInactive(t *testing.T) {
	s := emptySim(t, radius(2))
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 1, 0, 0.8, 0.5)

	require.NoError(t, s.consume(h))
	assert.False(t, st.Active())
	assert.Zero(t, s.ActiveSettlements())
	assert.Zero(t, s.MeanPopulation())
	// Settlements stay on the grid after they empty.
	assert.Len(t, s.Settlements, 1)
	require.NoError(t, s.CheckInvariants())
}

func TestFieldChangeoverReleasesAtLimit(t *testing.T) {
	s := emptySim(t, func(c *config.Config) { c.FallowLimit = 10 })
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)
	kept := giveField(t, s, h, world.Coord{X: 3, Y: 3})
	old := giveField(t, s, h, world.Coord{X: 5, Y: 5})
	old.YearsFallowed = 9

	released, err := s.ChangeoverField(kept)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, 1, kept.YearsFallowed)

	released, err = s.ChangeoverField(old)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, []*agents.Field{kept}, h.Fields)
	assert.Equal(t, []*agents.Field{kept}, s.Fields)
	assert.NotContains(t, s.FieldIndex, old.ID)
	assert.True(t, s.Grid.IsEmpty(old.Position))
	require.NoError(t, s.CheckInvariants())
}

func TestFieldChangeoverPhase(t *testing.T) {
	s := emptySim(t, func(c *config.Config) { c.FallowLimit = 2 })
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)
	worked := giveField(t, s, h, world.Coord{X: 3, Y: 3})
	idle := giveField(t, s, h, world.Coord{X: 5, Y: 5})
	worked.MarkHarvested()

	require.NoError(t, s.fieldChangeover())
	assert.False(t, worked.Harvested)
	assert.Zero(t, worked.YearsFallowed)
	assert.Equal(t, 1, idle.YearsFallowed)
	assert.Len(t, s.Fields, 2)

	require.NoError(t, s.fieldChangeover())
	assert.Equal(t, []*agents.Field{worked}, s.Fields)
	assert.Equal(t, 1, s.LastStats.FieldsReleased)
	assert.Equal(t, "fallow", s.Events[len(s.Events)-1].Category)
}

func TestReleaseFieldTwiceIsNoop(t *testing.T) {
	s := emptySim(t, nil)
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)
	f := giveField(t, s, h, world.Coord{X: 3, Y: 3})

	require.NoError(t, s.ReleaseField(f))
	require.NoError(t, s.ReleaseField(f))
	assert.Empty(t, h.Fields)
	assert.Equal(t, 1, s.Grid.OccupiedCount())
}

func TestPopulationShiftRespectsCeiling(t *testing.T) {
	s := emptySim(t, func(c *config.Config) { c.PopulationGrowthRate = 0 })
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	for i := 0; i < 10; i++ {
		addHousehold(t, s, st, 5, 1000, 0.8, 0.5)
	}
	// The ceiling is pinned to the construction population of zero.
	s.populationShift(s.Households)
	assert.Zero(t, s.LastStats.Births)
	assert.Equal(t, 50, s.TotalPopulation())
}

func TestInvariantViolationDetected(t *testing.T) {
	s := emptySim(t, nil)
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)
	require.NoError(t, s.CheckInvariants())

	h.Grain = -1
	err := s.CheckInvariants()
	require.ErrorIs(t, err, ErrInvariant)
	assert.Contains(t, err.Error(), "negative grain")

	h.Grain = 0
	h.Competency = 0.1
	require.ErrorIs(t, s.CheckInvariants(), ErrInvariant)
}

func TestAbortIsSticky(t *testing.T) {
	s := emptySim(t, nil)
	st := addSettlement(t, s, world.Coord{X: 4, Y: 4})
	h := addHousehold(t, s, st, 5, 1000, 0.8, 0.5)

	claimErr := s.completeClaim(h, st.Position)
	require.ErrorIs(t, claimErr, world.ErrOccupied)

	err := s.abort(3, "claim", claimErr)
	require.ErrorIs(t, err, ErrInvariant)
	require.ErrorIs(t, err, world.ErrOccupied)

	var ie *InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, uint64(3), ie.Tick)
	assert.Equal(t, "claim", ie.Phase)

	assert.Equal(t, err, s.Aborted())
	assert.Equal(t, err, s.Step())
	assert.Equal(t, err, s.Run(10))
	assert.Zero(t, s.CurrentTick())
}
