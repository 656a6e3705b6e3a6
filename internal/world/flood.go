// Annual Nile flood: regenerates fertility from a Gaussian profile across columns.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/nile-sim/internal/entropy"
)

// Flood draw ranges and scale, as in the reference model.
const (
	FloodMeanMin  = 5
	FloodMeanMax  = 14
	FloodSigmaMin = 5
	FloodSigmaMax = 9
	FloodScale    = 17.0
)

// FloodParams records the draws used for one flood.
type FloodParams struct {
	Mu    int `json:"mu"`
	Sigma int `json:"sigma"`
}

// FloodProfile returns the fertility of each column for a given mean and
// standard deviation: FloodScale × normal pdf evaluated at the column index.
func FloodProfile(width, mu, sigma int) []float64 {
	out := make([]float64, width)
	s := float64(sigma)
	alpha := 2 * s * s
	beta := 1 / (s * math.Sqrt(2*math.Pi))
	for x := 0; x < width; x++ {
		d := float64(x - mu)
		out[x] = FloodScale * (beta * math.Exp(-(d*d)/alpha))
	}
	return out
}

// Flooder regenerates a grid's fertility once per tick.
type Flooder struct {
	roughness float64
	noise     opensimplex.Noise
	frequency float64
}

// NewFlooder creates a flooder. roughness 0 keeps every column uniform;
// anything above perturbs each cell with normalized simplex noise.
func NewFlooder(seed int64, roughness float64) *Flooder {
	f := &Flooder{roughness: roughness, frequency: 0.15}
	if roughness > 0 {
		f.noise = opensimplex.NewNormalized(seed + 1)
	}
	return f
}

// Roughness returns the configured per-cell perturbation strength.
func (f *Flooder) Roughness() float64 {
	return f.roughness
}

// Flood overwrites all fertility values. Occupancy is untouched.
func (f *Flooder) Flood(g *Grid, rng *entropy.Stream, tick uint64) FloodParams {
	p := FloodParams{
		Mu:    rng.IntRange(FloodMeanMin, FloodMeanMax),
		Sigma: rng.IntRange(FloodSigmaMin, FloodSigmaMax),
	}
	profile := FloodProfile(g.Width, p.Mu, p.Sigma)

	for y := 0; y < g.Height; y++ {
		row := y * g.Width
		for x := 0; x < g.Width; x++ {
			v := profile[x]
			if f.noise != nil {
				n := f.noise.Eval3(float64(x)*f.frequency, float64(y)*f.frequency, float64(tick)*f.frequency)
				v *= 1 + f.roughness*(2*n-1)
				if v < 0 {
					v = 0
				}
			}
			g.fertility[row+x] = v
		}
	}
	return p
}
