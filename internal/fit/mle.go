package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/fluoro-data/locprec/internal/psf"
	"github.com/fluoro-data/locprec/internal/sim"
)

// ErrFitFailed is returned when the optimizer cannot localize a spot.
var ErrFitFailed = errors.New("fit: optimization failed")

// MLE fits each seeded spot by maximizing the Poisson likelihood of a
// pixel-integrated 2D Gaussian with known width, using BFGS with the
// analytic likelihood gradient. Free parameters are the position and the
// (log-transformed, hence always positive) signal and background levels.
type MLE struct {
	// SigmaPx is the known PSF standard deviation in pixels.
	SigmaPx float64
	// WindowRadius is the half-size of the square fit window around the
	// seed. Zero means 3×SigmaPx rounded up, which captures >99% of the
	// spot's photons.
	WindowRadius int
}

// NewMLE returns an MLE fitter for the given PSF width.
func NewMLE(sigmaPx float64) *MLE {
	return &MLE{SigmaPx: sigmaPx}
}

// Fit implements Fitter. Seeds reference frames by index; a seed whose
// frame index is out of range fails the whole batch, since that is a
// caller bug rather than a data problem.
func (m *MLE) Fit(ctx context.Context, frames []sim.Frame, seeds []Seed) ([]Localization, error) {
	if m.SigmaPx <= 0 {
		return nil, fmt.Errorf("%w: psf sigma %g must be positive", ErrFitFailed, m.SigmaPx)
	}
	radius := m.WindowRadius
	if radius <= 0 {
		radius = int(math.Ceil(3 * m.SigmaPx))
	}

	byIndex := make(map[int]sim.Frame, len(frames))
	for _, f := range frames {
		byIndex[f.Index] = f
	}

	locs := make([]Localization, 0, len(seeds))
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, ok := byIndex[seed.Frame]
		if !ok {
			return nil, fmt.Errorf("%w: seed references unknown frame %d", ErrFitFailed, seed.Frame)
		}
		loc, err := m.fitSpot(frame, seed, radius)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", seed.Frame, err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func (m *MLE) fitSpot(frame sim.Frame, seed Seed, radius int) (Localization, error) {
	x0 := clampInt(int(seed.X)-radius, 0, frame.Width-1)
	x1 := clampInt(int(seed.X)+radius, 0, frame.Width-1)
	y0 := clampInt(int(seed.Y)-radius, 0, frame.Height-1)
	y1 := clampInt(int(seed.Y)+radius, 0, frame.Height-1)
	if x1 <= x0 || y1 <= y0 {
		return Localization{}, fmt.Errorf("%w: empty window around seed (%.1f,%.1f)", ErrFitFailed, seed.X, seed.Y)
	}

	// Starting guesses: background from the window's dimmest pixel,
	// signal from the remaining counts.
	minCount, total := math.Inf(1), 0.0
	npix := 0
	for j := y0; j <= y1; j++ {
		for i := x0; i <= x1; i++ {
			v := frame.At(i, j)
			total += v
			if v < minCount {
				minCount = v
			}
			npix++
		}
	}
	bg0 := math.Max(minCount, 0.1)
	sig0 := math.Max(total-bg0*float64(npix), 10)

	like := newSpotLikelihood(frame, x0, x1, y0, y1, m.SigmaPx)
	problem := optimize.Problem{Func: like.value, Grad: like.gradient}
	init := []float64{seed.X, seed.Y, math.Log(sig0), math.Log(bg0)}
	result, err := optimize.Minimize(problem, init, nil, &optimize.BFGS{})
	if err != nil {
		return Localization{}, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}
	if err := result.Status.Err(); err != nil {
		return Localization{}, fmt.Errorf("%w: %v", ErrFitFailed, err)
	}

	x, y := result.X[0], result.X[1]
	if x < float64(x0) || x > float64(x1+1) || y < float64(y0) || y > float64(y1+1) {
		return Localization{}, fmt.Errorf("%w: fit walked outside its window to (%.2f,%.2f)", ErrFitFailed, x, y)
	}

	return Localization{
		Frame:      seed.Frame,
		X:          x,
		Y:          y,
		Signal:     math.Exp(result.X[2]),
		Background: math.Exp(result.X[3]),
	}, nil
}

// spotLikelihood is the Poisson negative log-likelihood of a single spot
// over a fixed fit window, parameterized by θ = (x, y, ln N, ln b). The
// log transform keeps the rates positive without constrained optimization.
type spotLikelihood struct {
	frame          sim.Frame
	x0, x1, y0, y1 int
	sigma          float64
}

func newSpotLikelihood(frame sim.Frame, x0, x1, y0, y1 int, sigma float64) *spotLikelihood {
	return &spotLikelihood{frame: frame, x0: x0, x1: x1, y0: y0, y1: y1, sigma: sigma}
}

func (l *spotLikelihood) value(theta []float64) float64 {
	spot := psf.Spot{
		X:          theta[0],
		Y:          theta[1],
		Sigma:      l.sigma,
		Signal:     math.Exp(theta[2]),
		Background: math.Exp(theta[3]),
	}
	sum := 0.0
	for j := l.y0; j <= l.y1; j++ {
		for i := l.x0; i <= l.x1; i++ {
			mu := spot.ExpectedRate(i, j)
			n := l.frame.At(i, j)
			sum += mu
			if n > 0 {
				sum -= n * math.Log(mu)
			}
		}
	}
	return sum
}

// gradient fills grad with ∂NLL/∂θ. Each pixel contributes
// (1 − n/µ)·∂µ/∂θ, where µ = N·fx·fy + b factorizes per axis, so the
// pixel fractions and their derivatives are precomputed per row/column.
func (l *spotLikelihood) gradient(grad, theta []float64) {
	x, y := theta[0], theta[1]
	signal := math.Exp(theta[2])
	background := math.Exp(theta[3])

	nx, ny := l.x1-l.x0+1, l.y1-l.y0+1
	fx := make([]float64, nx)
	dfx := make([]float64, nx)
	for i := 0; i < nx; i++ {
		fx[i] = psf.PixelFraction(l.x0+i, x, l.sigma)
		dfx[i] = psf.PixelFractionDeriv(l.x0+i, x, l.sigma)
	}
	fy := make([]float64, ny)
	dfy := make([]float64, ny)
	for j := 0; j < ny; j++ {
		fy[j] = psf.PixelFraction(l.y0+j, y, l.sigma)
		dfy[j] = psf.PixelFractionDeriv(l.y0+j, y, l.sigma)
	}

	for k := range grad {
		grad[k] = 0
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			peak := signal * fx[i] * fy[j]
			mu := peak + background
			w := 1 - l.frame.At(l.x0+i, l.y0+j)/mu
			grad[0] += w * signal * dfx[i] * fy[j]
			grad[1] += w * signal * fx[i] * dfy[j]
			grad[2] += w * peak
			grad[3] += w * background
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
