// Package crb computes the Cramer-Rao lower bound on localization
// precision for maximum-likelihood fitting of a 2D Gaussian PSF
// (Mortensen et al. 2010, Eq. 5).
package crb

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// ErrInvalidArgument is returned when a parameter is outside its valid
// domain (non-positive signal, pixel size, or PSF sigma, or a non-finite
// value anywhere).
var ErrInvalidArgument = errors.New("crb: invalid argument")

// ErrNoConvergence is returned when the adaptive quadrature exhausts its
// subdivision budget before reaching the requested tolerance. Callers may
// retry with a relaxed tolerance; the estimator never retries on its own.
var ErrNoConvergence = errors.New("crb: quadrature did not converge")

// Params holds one localization scenario. Signal and Background are
// photo-electron counts (dimensionless); PixelSize and PSFSigma share a
// length unit (typically nanometers) and the returned bound is in that
// same unit.
type Params struct {
	Signal     float64 `json:"signal"`     // N: total expected photo-electrons from the emitter
	Background float64 `json:"background"` // b²: expected background photo-electrons per pixel
	PixelSize  float64 `json:"pixel_size"` // a: detector pixel size
	PSFSigma   float64 `json:"psf_sigma"`  // σa: standard deviation of the fitted Gaussian PSF
}

// Options control the adaptive quadrature. The defaults (relative
// tolerance 1e-8, 256-interval budget) keep the integration error well
// below the published example's precision; the returned bound depends
// softly on the tolerance because of the ln(t) singularity at t=0.
type Options struct {
	// RelTol is the relative error target for the integral estimate.
	RelTol float64
	// MaxIntervals bounds the number of subintervals the adaptive scheme
	// may hold at once. Each refinement step splits the worst interval,
	// so this caps total work at roughly 2×MaxIntervals panel pairs.
	MaxIntervals int
}

// DefaultOptions returns the documented quadrature defaults.
func DefaultOptions() Options {
	return Options{RelTol: 1e-8, MaxIntervals: 256}
}

// ComputeBound returns the theoretical lower bound on the standard
// deviation of the position estimate for p, using default quadrature
// options. The result is in the same length unit as p.PixelSize and
// p.PSFSigma.
func ComputeBound(p Params) (float64, error) {
	return ComputeBoundWith(p, DefaultOptions())
}

// ComputeBoundWith is ComputeBound with explicit quadrature options.
//
// For zero background the information integral vanishes and the bound
// degenerates to the Poisson limit σa/√N; that case is returned in
// closed form without invoking the quadrature.
func ComputeBoundWith(p Params, o Options) (float64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	if o.RelTol <= 0 {
		o.RelTol = DefaultOptions().RelTol
	}
	if o.MaxIntervals <= 0 {
		o.MaxIntervals = DefaultOptions().MaxIntervals
	}

	sigma2 := p.PSFSigma * p.PSFSigma

	// No-background limit: the integral term is zero.
	if p.Background == 0 {
		return math.Sqrt(sigma2 / p.Signal), nil
	}

	// f(t) = ln(t) / (1 + k·t) with k = N·a² / (2π·σa²·b²).
	k := p.Signal * p.PixelSize * p.PixelSize / (2 * math.Pi * sigma2 * p.Background)
	f := func(t float64) float64 {
		return math.Log(t) / (1 + k*t)
	}

	integral, err := adaptiveQuad(f, 0, 1, o.RelTol, o.MaxIntervals)
	if err != nil {
		return 0, err
	}

	variance := sigma2 / p.Signal / (1 + integral)
	if variance < 0 || math.IsNaN(variance) {
		// 1+I crossed zero, which the Mortensen integrand cannot
		// produce for valid inputs; treat it as a quadrature failure
		// rather than returning garbage.
		return 0, fmt.Errorf("%w: variance %g for %+v", ErrNoConvergence, variance, p)
	}
	return math.Sqrt(variance), nil
}

func (p Params) validate() error {
	switch {
	case !isFinite(p.Signal) || !isFinite(p.Background) || !isFinite(p.PixelSize) || !isFinite(p.PSFSigma):
		return fmt.Errorf("%w: parameters must be finite, got %+v", ErrInvalidArgument, p)
	case p.Signal <= 0:
		return fmt.Errorf("%w: signal must be positive, got %g", ErrInvalidArgument, p.Signal)
	case p.Background < 0:
		return fmt.Errorf("%w: background must be non-negative, got %g", ErrInvalidArgument, p.Background)
	case p.PixelSize <= 0:
		return fmt.Errorf("%w: pixel size must be positive, got %g", ErrInvalidArgument, p.PixelSize)
	case p.PSFSigma <= 0:
		return fmt.Errorf("%w: psf sigma must be positive, got %g", ErrInvalidArgument, p.PSFSigma)
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// legendreNodes is the per-panel Gauss-Legendre order. Legendre nodes are
// strictly interior, so the ln(t) endpoint singularity is never evaluated
// directly; accuracy near t=0 comes from subdivision instead.
const legendreNodes = 15

// interval is one subinterval of the adaptive scheme. val is the
// two-panel estimate of the integral over [a,b]; errEst is the
// disagreement between the one-panel and two-panel estimates, the usual
// proxy for the local quadrature error.
type interval struct {
	a, b   float64
	val    float64
	errEst float64
}

// adaptiveQuad integrates f over [a,b] by globally adaptive bisection:
// it repeatedly splits the subinterval with the largest error estimate
// until the summed estimates drop below relTol of the running total.
// Worst-first refinement (rather than fixed per-interval tolerances) is
// what makes the integrable endpoint singularity tractable — the error
// contribution of the interval touching t=0 shrinks linearly with its
// width, so a handful of splits concentrates all remaining error there
// and the global sum converges.
func adaptiveQuad(f func(float64) float64, a, b, relTol float64, maxIntervals int) (float64, error) {
	rule := quad.Legendre{}
	panel := func(lo, hi float64) float64 {
		return quad.Fixed(f, lo, hi, legendreNodes, rule, 0)
	}
	eval := func(lo, hi float64) interval {
		whole := panel(lo, hi)
		mid := 0.5 * (lo + hi)
		refined := panel(lo, mid) + panel(mid, hi)
		return interval{a: lo, b: hi, val: refined, errEst: math.Abs(refined - whole)}
	}

	intervals := []interval{eval(a, b)}
	for {
		total, totalErr := 0.0, 0.0
		worst := 0
		for i, iv := range intervals {
			total += iv.val
			totalErr += iv.errEst
			if iv.errEst > intervals[worst].errEst {
				worst = i
			}
		}
		if totalErr <= relTol*math.Abs(total)+1e-15 {
			return total, nil
		}
		if len(intervals) >= maxIntervals {
			return 0, fmt.Errorf("%w: error estimate %g after %d intervals (target %g)",
				ErrNoConvergence, totalErr, len(intervals), relTol*math.Abs(total))
		}

		iv := intervals[worst]
		mid := 0.5 * (iv.a + iv.b)
		if mid <= iv.a || mid >= iv.b {
			// Interval narrower than float64 spacing; cannot refine further.
			return 0, fmt.Errorf("%w: interval [%g,%g] at float64 resolution with error %g",
				ErrNoConvergence, iv.a, iv.b, iv.errEst)
		}
		intervals[worst] = eval(iv.a, mid)
		intervals = append(intervals, eval(mid, iv.b))
	}
}
