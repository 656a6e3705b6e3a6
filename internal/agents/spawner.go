// Household spawning — seeds initial households with randomized traits.
package agents

import (
	"github.com/talgya/nile-sim/internal/entropy"
	"github.com/talgya/nile-sim/internal/world"
)

// SpawnConfig controls the initial state of spawned households.
type SpawnConfig struct {
	Workers       int
	Grain         float64
	MinCompetency float64
	MinAmbition   float64
}

// Spawner creates households and fields with sequential ids.
type Spawner struct {
	rng         *entropy.Stream
	nextID      HouseholdID
	nextFieldID FieldID
}

// NewSpawner creates a spawner drawing traits from rng.
func NewSpawner(rng *entropy.Stream) *Spawner {
	return &Spawner{
		rng:         rng,
		nextID:      1,
		nextFieldID: 1,
	}
}

// SpawnHouseholds creates count households for one settlement.
func (s *Spawner) SpawnHouseholds(count int, settlementID uint64, home world.Coord, cfg SpawnConfig) []*Household {
	out := make([]*Household, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.spawnOne(settlementID, home, cfg))
	}
	return out
}

func (s *Spawner) spawnOne(settlementID uint64, home world.Coord, cfg SpawnConfig) *Household {
	id := s.nextID
	s.nextID++

	// Draw order matters for reproducibility: competency, ambition, countdown.
	competency := s.rng.Uniform(cfg.MinCompetency, 1)
	ambition := s.rng.Uniform(cfg.MinAmbition, 1)

	return &Household{
		ID:                  id,
		SettlementID:        settlementID,
		Home:                home,
		Workers:             cfg.Workers,
		Grain:               cfg.Grain,
		Competency:          competency,
		Ambition:            ambition,
		GenerationCountdown: s.rng.IntRange(GenerationMinYears, GenerationMaxYears),
	}
}

// NewField creates an unowned field at pos. The caller attaches it with
// Household.AddField.
func (s *Spawner) NewField(pos world.Coord) *Field {
	id := s.nextFieldID
	s.nextFieldID++
	return &Field{ID: id, Position: pos}
}
