// Package fit localizes emitters in simulated frames. The Fitter
// interface is the boundary between the benchmarking pipeline and any
// particular fitting engine; MLE is the in-process implementation.
package fit

import (
	"context"

	"github.com/fluoro-data/locprec/internal/sim"
)

// Seed is a starting guess for one spot, in pixel coordinates.
type Seed struct {
	Frame int
	X, Y  float64
}

// Localization is one fitted spot. Positions are in pixel coordinates;
// Signal and Background are the fitted photo-electron estimates.
type Localization struct {
	Frame      int
	X, Y       float64
	Signal     float64
	Background float64
}

// Fitter produces fitted positions for seeded spots in a frame sequence.
// Implementations must honor ctx cancellation between spots.
type Fitter interface {
	Fit(ctx context.Context, frames []sim.Frame, seeds []Seed) ([]Localization, error)
}

// BrightestPixelSeeds returns one seed per frame at its brightest pixel.
// Good enough as a starting guess for a single well-separated emitter.
func BrightestPixelSeeds(frames []sim.Frame) []Seed {
	seeds := make([]Seed, 0, len(frames))
	for _, f := range frames {
		best, bestIdx := -1.0, 0
		for idx, v := range f.Pixels {
			if v > best {
				best, bestIdx = v, idx
			}
		}
		// Pixel (i,j) covers [i,i+1)×[j,j+1); seed at its center.
		seeds = append(seeds, Seed{
			Frame: f.Index,
			X:     float64(bestIdx%f.Width) + 0.5,
			Y:     float64(bestIdx/f.Width) + 0.5,
		})
	}
	return seeds
}
