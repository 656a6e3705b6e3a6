// Package stats computes aggregate population, wealth, and inequality metrics
// from an immutable view of the household collection. All functions are pure.
package stats

import "sort"

// Household is the part of a household the aggregates read.
type Household struct {
	Workers int
	Grain   float64
}

// Snapshot is the metrics record collected once per tick.
type Snapshot struct {
	Tick              uint64  `json:"tick" db:"tick"`
	TotalPopulation   int     `json:"total_population" db:"total_population"`
	MeanPopulation    float64 `json:"mean_population" db:"mean_population"`
	TotalWealth       float64 `json:"total_wealth" db:"total_wealth"`
	MeanWealth        float64 `json:"mean_wealth" db:"mean_wealth"`
	Gini              float64 `json:"gini" db:"gini"`
	Households        int     `json:"households" db:"households"`
	Fields            int     `json:"fields" db:"fields"`
	ActiveSettlements int     `json:"active_settlements" db:"active_settlements"`
}

// TotalPopulation sums workers over all households.
func TotalPopulation(hs []Household) int {
	n := 0
	for _, h := range hs {
		n += h.Workers
	}
	return n
}

// TotalWealth sums grain over all households.
func TotalWealth(hs []Household) float64 {
	total := 0.0
	for _, h := range hs {
		total += h.Grain
	}
	return total
}

// PerSettlement divides a total across settlements, defined as 0 when there
// are none.
func PerSettlement(total float64, settlements int) float64 {
	if settlements <= 0 {
		return 0
	}
	return total / float64(settlements)
}

// Gini returns the Gini coefficient of household grain using the
// area-under-the-Lorenz-curve form: with grain sorted ascending,
// B = Σ xᵢ(N−i) / (N·Σx) and G = 1 + 1/N − 2B.
// Returns 0 for an empty population or zero total wealth.
func Gini(hs []Household) float64 {
	n := len(hs)
	if n == 0 {
		return 0
	}
	x := make([]float64, n)
	sum := 0.0
	for i, h := range hs {
		x[i] = h.Grain
		sum += h.Grain
	}
	if float64(n)*sum == 0 {
		return 0
	}
	sort.Float64s(x)

	weighted := 0.0
	for i, xi := range x {
		weighted += xi * float64(n-i)
	}
	b := weighted / (float64(n) * sum)
	return 1 + 1/float64(n) - 2*b
}

// Collect builds a snapshot for tick from the current household view.
func Collect(tick uint64, hs []Household, activeSettlements, fields int) Snapshot {
	pop := TotalPopulation(hs)
	wealth := TotalWealth(hs)
	return Snapshot{
		Tick:              tick,
		TotalPopulation:   pop,
		MeanPopulation:    PerSettlement(float64(pop), activeSettlements),
		TotalWealth:       wealth,
		MeanWealth:        PerSettlement(wealth, activeSettlements),
		Gini:              Gini(hs),
		Households:        len(hs),
		Fields:            fields,
		ActiveSettlements: activeSettlements,
	}
}
