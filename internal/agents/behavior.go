// Household behaviours that touch only the household itself.
package agents

import (
	"github.com/talgya/nile-sim/internal/entropy"
)

// ConsumeGrain feeds every worker for a year. If the store cannot cover it,
// grain is clamped to zero and one worker starves. Returns true when a worker
// was lost; the caller handles extinction when Workers reaches zero.
func (h *Household) ConsumeGrain() bool {
	h.Grain -= h.ConsumptionNeed()
	if h.Grain > 0 {
		return false
	}
	h.Grain = 0
	if h.Workers > 0 {
		h.Workers--
	}
	return true
}

// StorageLoss spoils a fixed fraction of stored grain.
func (h *Household) StorageLoss() {
	h.Grain -= h.Grain * StorageLossRate
}

// IncreaseCompetency applies an annual percentage gain, capped at 1.
func (h *Household) IncreaseCompetency(percent float64) {
	if percent <= 0 {
		return
	}
	h.Competency += h.Competency * percent / 100
	if h.Competency > 1 {
		h.Competency = 1
	}
}

// TraitBounds holds the population-wide floors and the size of the
// generational random walk.
type TraitBounds struct {
	MinCompetency float64
	MinAmbition   float64
	Variation     float64
}

// GenerationChangeover counts down to the next head of household. When the
// countdown expires it is re-drawn and both traits take a bounded random step.
// Returns true if a changeover happened this call.
func (h *Household) GenerationChangeover(rng *entropy.Stream, b TraitBounds) bool {
	h.GenerationCountdown--
	if h.GenerationCountdown > 0 {
		return false
	}
	h.GenerationCountdown = rng.IntRange(GenerationMinYears, GenerationMaxYears)

	// A floor of 1 leaves no room to move; skip that trait entirely.
	if b.MinCompetency < 1 {
		h.Competency = perturb(rng, h.Competency, b.MinCompetency, b.Variation)
	}
	if b.MinAmbition < 1 {
		h.Ambition = perturb(rng, h.Ambition, b.MinAmbition, b.Variation)
	}
	return true
}

// perturb adds a signed uniform step of at most variation, redrawing both
// magnitude and sign until the result lands in [min, 1]. Terminates because
// value itself is always in range.
func perturb(rng *entropy.Stream, value, min, variation float64) float64 {
	for {
		delta := rng.Uniform(0, variation)
		if rng.Float() < 0.5 {
			delta = -delta
		}
		next := value + delta
		if next >= min && next <= 1 {
			return next
		}
	}
}
