// Settlement placement — random empty cells, plus procedural names.
package world

import (
	"fmt"

	"github.com/talgya/nile-sim/internal/entropy"
)

// PlaceRandom picks n distinct empty cells uniformly at random.
// Returns an error if the grid has fewer than n empty cells.
func PlaceRandom(g *Grid, n int, rng *entropy.Stream) ([]Coord, error) {
	empty := g.EmptyCells()
	if n > len(empty) {
		return nil, fmt.Errorf("place %d settlements on %d empty cells: %w", n, len(empty), ErrOccupied)
	}

	out := make([]Coord, 0, n)
	for i := 0; i < n; i++ {
		j := rng.Intn(len(empty))
		out = append(out, empty[j])
		// Swap-remove so the same cell cannot be chosen twice.
		empty[j] = empty[len(empty)-1]
		empty = empty[:len(empty)-1]
	}
	return out, nil
}

var (
	namePrefixes = []string{
		"Nekh", "Abyd", "Hier", "Nag", "Buto", "Mer", "Tjen", "Qus",
		"Ombo", "Kop", "Gebe", "Armant", "Badar", "Maadi", "Sais", "Tarkh",
	}
	nameSuffixes = []string{
		"en", "os", "ada", "ut", "imde", "et", "ein", "ara", "is", "ahn",
	}
)

// SettlementName returns a stable procedural name for a settlement id.
// Names do not draw from the random stream, so naming never shifts a run.
func SettlementName(id uint64) string {
	p := namePrefixes[id%uint64(len(namePrefixes))]
	s := nameSuffixes[(id/uint64(len(namePrefixes)))%uint64(len(nameSuffixes))]
	return p + s
}
