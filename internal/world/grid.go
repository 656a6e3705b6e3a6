package world

import (
	"errors"
	"fmt"
)

var (
	// ErrOccupied is returned when placing onto a cell that already holds an entity.
	ErrOccupied = errors.New("world: cell occupied")
	// ErrOutOfBounds is returned for coordinates outside the grid.
	ErrOutOfBounds = errors.New("world: coordinate out of bounds")
	// ErrNotOccupant is returned when removing an entity that is not on the cell.
	ErrNotOccupant = errors.New("world: entity is not the cell occupant")
)

// Grid holds per-cell fertility and the single-occupant map.
// Both slices are row-major: index = y*Width + x.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	fertility []float64
	cells     []Occupant
	occupied  int
}

// NewGrid creates an empty grid with zero fertility.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		fertility: make([]float64, width*height),
		cells:     make([]Occupant, width*height),
	}
}

func (g *Grid) index(c Coord) int {
	return c.Y*g.Width + c.X
}

// InBounds returns true if the coordinate lies on the grid.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < g.Width && c.Y >= 0 && c.Y < g.Height
}

// Fertility returns the fertility of a cell, or 0 outside the grid.
func (g *Grid) Fertility(c Coord) float64 {
	if !g.InBounds(c) {
		return 0
	}
	return g.fertility[g.index(c)]
}

// ColumnFertility returns the fertility of the first row of column x.
// Without flood roughness every row of a column shares this value.
func (g *Grid) ColumnFertility(x int) float64 {
	return g.Fertility(Coord{X: x, Y: 0})
}

// Fertilities returns a copy of the fertility field, row-major.
func (g *Grid) Fertilities() []float64 {
	out := make([]float64, len(g.fertility))
	copy(out, g.fertility)
	return out
}

// SetFertility overwrites a single cell. Used by tests and tooling that need
// a hand-built landscape.
func (g *Grid) SetFertility(c Coord, v float64) {
	if g.InBounds(c) {
		g.fertility[g.index(c)] = v
	}
}

// Occupant returns whatever is placed on the cell.
func (g *Grid) Occupant(c Coord) Occupant {
	if !g.InBounds(c) {
		return Occupant{}
	}
	return g.cells[g.index(c)]
}

// IsEmpty reports whether an in-bounds cell has no occupant.
func (g *Grid) IsEmpty(c Coord) bool {
	return g.InBounds(c) && g.cells[g.index(c)].Empty()
}

// Place puts an entity on an empty cell.
func (g *Grid) Place(c Coord, o Occupant) error {
	if !g.InBounds(c) {
		return fmt.Errorf("place %s %d at %v: %w", o.Kind, o.ID, c, ErrOutOfBounds)
	}
	i := g.index(c)
	if !g.cells[i].Empty() {
		cur := g.cells[i]
		return fmt.Errorf("place %s %d at %v (held by %s %d): %w", o.Kind, o.ID, c, cur.Kind, cur.ID, ErrOccupied)
	}
	g.cells[i] = o
	g.occupied++
	return nil
}

// Remove clears a cell, checking that o is the entity placed there.
func (g *Grid) Remove(c Coord, o Occupant) error {
	if !g.InBounds(c) {
		return fmt.Errorf("remove %s %d at %v: %w", o.Kind, o.ID, c, ErrOutOfBounds)
	}
	i := g.index(c)
	if g.cells[i] != o {
		return fmt.Errorf("remove %s %d at %v: %w", o.Kind, o.ID, c, ErrNotOccupant)
	}
	g.cells[i] = Occupant{}
	g.occupied--
	return nil
}

// OccupiedCount returns the number of occupied cells.
func (g *Grid) OccupiedCount() int {
	return g.occupied
}

// EmptyCells lists all unoccupied cells in row-major order.
func (g *Grid) EmptyCells() []Coord {
	out := make([]Coord, 0, len(g.cells)-g.occupied)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.cells[y*g.Width+x].Empty() {
				out = append(out, Coord{X: x, Y: y})
			}
		}
	}
	return out
}

// KnowledgeWindow returns the cells a household at center can know about
// within radius r. The upper edge is clamped to the last column/row index and
// stays exclusive, so the far edge of the grid is never searched. This matches
// the reference model's bounds exactly.
func (g *Grid) KnowledgeWindow(center Coord, r int) Window {
	w := Window{
		MinX: center.X - r,
		MinY: center.Y - r,
		MaxX: center.X + r,
		MaxY: center.Y + r,
	}
	if w.MinX < 0 {
		w.MinX = 0
	}
	if w.MinY < 0 {
		w.MinY = 0
	}
	if w.MaxX > g.Width-1 {
		w.MaxX = g.Width - 1
	}
	if w.MaxY > g.Height-1 {
		w.MaxY = g.Height - 1
	}
	return w
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, occupied=%d)", g.Width, g.Height, g.occupied)
}
