// Land claiming — households take the most fertile free cell they know of.
package engine

import (
	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/world"
)

// claimFields lets h try to claim one new field this tick. A household claims
// when it is ambitious and has workers to spare, or unconditionally while it
// holds at most one field.
func (s *Simulation) claimFields(h *agents.Household) error {
	chance := s.rng.Float()
	fields := h.FieldCount()
	if !((chance < h.Ambition && h.Workers > fields) || fields <= 1) {
		return nil
	}

	best, fertility := s.bestFreeCell(h.Home)
	if fertility <= 0 {
		return nil
	}
	return s.completeClaim(h, best)
}

// bestFreeCell scans the knowledge window column by column (x outer, y
// inner) and returns the unoccupied cell with the highest fertility. A strict
// comparison means the first cell in scan order wins ties. Fertility is -1
// when nothing was found.
func (s *Simulation) bestFreeCell(home world.Coord) (world.Coord, float64) {
	win := s.Grid.KnowledgeWindow(home, s.Config.KnowledgeRadius)
	best := world.Coord{}
	bestFertility := -1.0

	for x := win.MinX; x < win.MaxX; x++ {
		for y := win.MinY; y < win.MaxY; y++ {
			c := world.Coord{X: x, Y: y}
			if !s.withinKnowledge(home, c) {
				continue
			}
			f := s.Grid.Fertility(c)
			if f > bestFertility && s.Grid.IsEmpty(c) {
				best = c
				bestFertility = f
			}
		}
	}
	return best, bestFertility
}

// withinKnowledge applies the optional circular cutoff on top of the square
// window.
func (s *Simulation) withinKnowledge(home, c world.Coord) bool {
	if !s.Config.CircularKnowledge {
		return true
	}
	r := s.Config.KnowledgeRadius
	dx := c.X - home.X
	dy := c.Y - home.Y
	return dx*dx+dy*dy <= r*r
}

// completeClaim creates a field at c owned by h and marks the cell occupied.
func (s *Simulation) completeClaim(h *agents.Household, c world.Coord) error {
	f := s.spawner.NewField(c)
	if err := s.Grid.Place(c, world.Occupant{Kind: world.KindField, ID: f.ID}); err != nil {
		return err
	}
	h.AddField(f)
	s.Fields = append(s.Fields, f)
	s.FieldIndex[f.ID] = f
	s.LastStats.Claims++
	return nil
}
