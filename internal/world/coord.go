// Package world provides the fertility grid, cell occupancy, and the annual
// flood that regenerates fertility. Uses (x, y) cell coordinates with no
// wraparound.
package world

import "math"

// Coord is a cell position on the grid. X selects the column, Y the row.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between two cells.
func Distance(a, b Coord) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Window is a half-open rectangle of cells [MinX, MaxX) × [MinY, MaxY).
type Window struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Contains reports whether c lies inside the window.
func (w Window) Contains(c Coord) bool {
	return c.X >= w.MinX && c.X < w.MaxX && c.Y >= w.MinY && c.Y < w.MaxY
}

// Kind tags what occupies a cell.
type Kind uint8

const (
	KindNone       Kind = iota // Empty cell
	KindSettlement             // Settlement anchor; households share it
	KindHousehold              // Households are never placed; used for portrayal only
	KindField                  // Claimed farmland
)

// String returns the lower-case kind name used in API payloads.
func (k Kind) String() string {
	switch k {
	case KindSettlement:
		return "settlement"
	case KindHousehold:
		return "household"
	case KindField:
		return "field"
	default:
		return "none"
	}
}

// Occupant identifies the single entity placed on a cell.
type Occupant struct {
	Kind Kind   `json:"kind"`
	ID   uint64 `json:"id"`
}

// Empty reports whether the occupant slot is unused.
func (o Occupant) Empty() bool {
	return o.Kind == KindNone
}
