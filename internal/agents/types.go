// Package agents provides the household and field data model and the
// per-household economic behaviours that need no view of the wider world.
package agents

import (
	"github.com/talgya/nile-sim/internal/world"
)

// Economic constants carried over from the NetLogo reference model.
const (
	MaxPotentialYield          = 2475.0 // Grain from a fully fertile patch at competency 1
	AnnualPerPersonConsumption = 160.0  // Grain one worker eats per year
	SeedingCost                = 0.125 * MaxPotentialYield
	StorageLossRate            = 0.1 // Fraction of stored grain spoiled per year

	GenerationMinYears = 10 // Generation changeover countdown range, inclusive
	GenerationMaxYears = 15
)

// HouseholdID is a unique identifier for a household.
type HouseholdID = uint64

// FieldID is a unique identifier for a field.
type FieldID = uint64

// Household is the economic decision-making unit. It belongs to exactly one
// settlement and owns zero or more fields.
type Household struct {
	ID           HouseholdID `json:"id"`
	SettlementID uint64      `json:"settlement_id"`
	// Home is the owning settlement's position. Settlements never move, so
	// this is fixed for the household's lifetime.
	Home world.Coord `json:"home"`

	Workers int     `json:"workers"`
	Grain   float64 `json:"grain"`

	Competency float64 `json:"competency"` // [min_competency, 1]
	Ambition   float64 `json:"ambition"`   // [min_ambition, 1]

	GenerationCountdown int `json:"generation_countdown"`

	Fields []*Field `json:"-"`

	// WorkersWorked counts workers assigned to farming or rental this tick.
	WorkersWorked int `json:"workers_worked"`
}

// Field is a claimed patch of farmland.
type Field struct {
	ID            FieldID     `json:"id"`
	OwnerID       HouseholdID `json:"owner_id"`
	Position      world.Coord `json:"position"`
	Harvested     bool        `json:"harvested"`
	YearsFallowed int         `json:"years_fallowed"`
}

// Alive reports whether the household still has workers.
func (h *Household) Alive() bool {
	return h.Workers > 0
}

// FieldCount returns the number of fields owned.
func (h *Household) FieldCount() int {
	return len(h.Fields)
}

// AddField appends a field and takes ownership of it.
func (h *Household) AddField(f *Field) {
	f.OwnerID = h.ID
	h.Fields = append(h.Fields, f)
}

// RemoveField drops a field from the owned list, preserving order.
// Returns false if the household did not own it.
func (h *Household) RemoveField(id FieldID) bool {
	for i, f := range h.Fields {
		if f.ID == id {
			h.Fields = append(h.Fields[:i], h.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// ConsumptionNeed is the grain the household eats in one year.
func (h *Household) ConsumptionNeed() float64 {
	return float64(h.Workers) * AnnualPerPersonConsumption
}

// HarvestValue is the gross grain this household would get from a cell of
// the given fertility at the given distance from home.
func (h *Household) HarvestValue(fertility, distance, distanceCost float64) float64 {
	return fertility*MaxPotentialYield*h.Competency - distance*distanceCost
}
