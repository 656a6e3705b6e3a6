package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func households(grain ...float64) []Household {
	out := make([]Household, len(grain))
	for i, g := range grain {
		out[i] = Household{Workers: 5, Grain: g}
	}
	return out
}

func TestGini(t *testing.T) {
	tests := []struct {
		name string
		hs   []Household
		want float64
	}{
		{"empty", nil, 0},
		{"zero wealth", households(0, 0, 0), 0},
		{"equal", households(500, 500, 500, 500), 0},
		{"one holder of four", households(0, 0, 0, 1000), 0.75},
		{"linear", households(4, 1, 3, 2), 0.25},
		{"single", households(123), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Gini(tt.hs), 1e-12)
		})
	}
}

func TestGiniApproachesOne(t *testing.T) {
	hs := make([]Household, 1000)
	hs[0].Grain = 1
	assert.InDelta(t, 0.999, Gini(hs), 1e-12)
}

func TestTotalsAndMeans(t *testing.T) {
	hs := []Household{{Workers: 5, Grain: 1000}, {Workers: 3, Grain: 500.5}, {Workers: 0, Grain: 0}}
	assert.Equal(t, 8, TotalPopulation(hs))
	assert.InDelta(t, 1500.5, TotalWealth(hs), 1e-12)
	assert.Equal(t, 4.0, PerSettlement(8, 2))
	assert.Zero(t, PerSettlement(8, 0))
}

func TestCollect(t *testing.T) {
	hs := households(100, 300)
	snap := Collect(7, hs, 2, 4)
	assert.Equal(t, Snapshot{
		Tick:              7,
		TotalPopulation:   10,
		MeanPopulation:    5,
		TotalWealth:       400,
		MeanWealth:        200,
		Gini:              Gini(hs),
		Households:        2,
		Fields:            4,
		ActiveSettlements: 2,
	}, snap)
	assert.InDelta(t, 0.25, snap.Gini, 1e-12)
}
