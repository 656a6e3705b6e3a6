package api

import (
	"fmt"
	"math"

	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/world"
)

// Render layers, bottom to top.
const (
	LayerTerrain    = 0
	LayerField      = 1
	LayerSettlement = 2
)

// Palette colours settlements and their households' fields by settlement id.
var Palette = []string{
	"red", "yellow", "pink", "blue", "#00ff00", "purple", "cyan", "orange", "brown",
}

// Portrayal describes how a renderer should draw one cell or entity.
type Portrayal struct {
	Kind   string  `json:"kind"`
	Shape  string  `json:"shape"`
	Color  string  `json:"color"`
	Filled bool    `json:"filled"`
	Layer  int     `json:"layer"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	R      float64 `json:"r,omitempty"`
	W      float64 `json:"w,omitempty"`
	H      float64 `json:"h,omitempty"`
	ID     uint64  `json:"id,omitempty"`
}

// SettlementColor returns the palette colour of a settlement.
func SettlementColor(id uint64) string {
	return Palette[id%uint64(len(Palette))]
}

// Portray returns the portrayal of whatever occupies c, or false for an
// empty cell or a dangling occupant.
func Portray(sim *engine.Simulation, c world.Coord) (Portrayal, bool) {
	occ := sim.Grid.Occupant(c)
	switch occ.Kind {
	case world.KindSettlement:
		st, ok := sim.SettlementIndex[occ.ID]
		if !ok {
			return Portrayal{}, false
		}
		return Portrayal{
			Kind:   occ.Kind.String(),
			Shape:  "circle",
			Color:  SettlementColor(st.ID),
			Filled: true,
			Layer:  LayerSettlement,
			X:      c.X,
			Y:      c.Y,
			R:      math.Sqrt(float64(st.Workers()) / 15),
			ID:     st.ID,
		}, true
	case world.KindField:
		f, ok := sim.FieldIndex[occ.ID]
		if !ok {
			return Portrayal{}, false
		}
		owner, ok := sim.HouseholdIndex[f.OwnerID]
		if !ok {
			return Portrayal{}, false
		}
		return Portrayal{
			Kind:   occ.Kind.String(),
			Shape:  "rect",
			Color:  SettlementColor(owner.SettlementID),
			Filled: true,
			Layer:  LayerField,
			X:      c.X,
			Y:      c.Y,
			W:      0.2,
			H:      0.2,
			ID:     f.ID,
		}, true
	}
	return Portrayal{}, false
}

// PortrayGrid returns every portrayal grouped by layer: one terrain cell per
// grid cell shaded by fertility, then fields and settlements.
func PortrayGrid(sim *engine.Simulation) map[int][]Portrayal {
	g := sim.Grid
	maxFertility := 0.0
	for _, v := range g.Fertilities() {
		maxFertility = math.Max(maxFertility, v)
	}

	layers := make(map[int][]Portrayal, 3)
	for x := 0; x < g.Width; x++ {
		for y := 0; y < g.Height; y++ {
			c := world.Coord{X: x, Y: y}
			layers[LayerTerrain] = append(layers[LayerTerrain], Portrayal{
				Kind:   "terrain",
				Shape:  "rect",
				Color:  FertilityColor(g.Fertility(c), maxFertility),
				Filled: true,
				Layer:  LayerTerrain,
				X:      x,
				Y:      y,
				W:      1,
				H:      1,
			})
			if p, ok := Portray(sim, c); ok {
				layers[p.Layer] = append(layers[p.Layer], p)
			}
		}
	}
	return layers
}

// FertilityColor maps a fertility value onto a white-to-green ramp
// normalized over [-0.5, 1.2 × max].
func FertilityColor(v, peak float64) string {
	lo, hi := -0.5, peak*1.2
	t := 0.0
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	t = math.Min(1, math.Max(0, t))

	// Endpoints of a sequential greens ramp.
	from := [3]float64{0xf7, 0xfc, 0xf5}
	to := [3]float64{0x00, 0x44, 0x1b}
	var rgb [3]int
	for i := range rgb {
		rgb[i] = int(math.Round(from[i] + (to[i]-from[i])*t))
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}
