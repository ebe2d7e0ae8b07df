// Package compare aggregates fitted localizations against ground truth
// and sets the empirical precision beside the theoretical Cramer-Rao
// bound for the same imaging parameters.
package compare

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/fluoro-data/locprec/internal/crb"
	"github.com/fluoro-data/locprec/internal/fit"
	"github.com/fluoro-data/locprec/internal/sim"
)

// ErrMismatch is returned when localizations cannot be matched to the
// movie's ground truth.
var ErrMismatch = errors.New("compare: localizations do not match ground truth")

// Comparison summarizes one run. All lengths are nanometers.
type Comparison struct {
	RunID  string     `json:"run_id"`
	Params crb.Params `json:"params"`
	Count  int        `json:"count"` // localizations aggregated

	BiasX            float64 `json:"bias_x_nm"`    // mean x residual
	BiasY            float64 `json:"bias_y_nm"`    // mean y residual
	SigmaX           float64 `json:"sigma_x_nm"`   // empirical x standard deviation
	SigmaY           float64 `json:"sigma_y_nm"`   // empirical y standard deviation
	EmpiricalSigma   float64 `json:"empirical_nm"` // pooled across both axes
	TheoreticalBound float64 `json:"bound_nm"`     // Cramer-Rao bound for Params
	Ratio            float64 `json:"ratio"`        // EmpiricalSigma / TheoreticalBound
}

// Evaluate matches locs against the movie's ground truth by frame index
// and computes residual statistics in nanometers alongside the
// theoretical bound for the movie's imaging parameters.
func Evaluate(movie *sim.Movie, locs []fit.Localization) (Comparison, error) {
	if len(locs) == 0 {
		return Comparison{}, fmt.Errorf("%w: no localizations", ErrMismatch)
	}

	truth := make(map[int]sim.GroundTruth, len(movie.Truth))
	for _, gt := range movie.Truth {
		truth[gt.Frame] = gt
	}

	nm := movie.Config.PixelSizeNM
	dx := make([]float64, 0, len(locs))
	dy := make([]float64, 0, len(locs))
	for _, loc := range locs {
		gt, ok := truth[loc.Frame]
		if !ok {
			return Comparison{}, fmt.Errorf("%w: no ground truth for frame %d", ErrMismatch, loc.Frame)
		}
		dx = append(dx, (loc.X-gt.X)*nm)
		dy = append(dy, (loc.Y-gt.Y)*nm)
	}

	params := crb.Params{
		Signal:     movie.Config.Signal,
		Background: movie.Config.Background,
		PixelSize:  movie.Config.PixelSizeNM,
		PSFSigma:   movie.Config.PSFSigmaNM,
	}
	bound, err := crb.ComputeBound(params)
	if err != nil {
		return Comparison{}, fmt.Errorf("compare: bound for run %s: %w", movie.RunID, err)
	}

	pooled := append(append([]float64{}, dx...), dy...)
	c := Comparison{
		RunID:            movie.RunID,
		Params:           params,
		Count:            len(locs),
		BiasX:            stat.Mean(dx, nil),
		BiasY:            stat.Mean(dy, nil),
		SigmaX:           stat.StdDev(dx, nil),
		SigmaY:           stat.StdDev(dy, nil),
		EmpiricalSigma:   stat.StdDev(pooled, nil),
		TheoreticalBound: bound,
	}
	c.Ratio = c.EmpiricalSigma / c.TheoreticalBound
	return c, nil
}

// String renders the comparison the way run logs report it.
func (c Comparison) String() string {
	return fmt.Sprintf("run %s: n=%d empirical=%.2fnm bound=%.2fnm ratio=%.2f (bias x=%.2fnm y=%.2fnm)",
		c.RunID, c.Count, c.EmpiricalSigma, c.TheoreticalBound, c.Ratio, c.BiasX, c.BiasY)
}
