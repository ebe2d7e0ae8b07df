// Package psf models the pixel-integrated 2D Gaussian point-spread
// function used by both the frame simulator and the maximum-likelihood
// fitter. All coordinates are in pixel units; positions are continuous
// with pixel (i,j) covering [i,i+1)×[j,j+1).
package psf

import "math"

// Spot is a single emitter imaged onto the detector.
type Spot struct {
	X, Y       float64 // emitter position, pixels
	Sigma      float64 // PSF standard deviation, pixels
	Signal     float64 // total expected photo-electrons from the emitter
	Background float64 // expected background photo-electrons per pixel
}

// PixelFraction returns the fraction of a unit-integral 1D Gaussian
// centered at c with width sigma that falls inside pixel i, i.e. the
// integral of the Gaussian over [i, i+1].
func PixelFraction(i int, c, sigma float64) float64 {
	s := math.Sqrt2 * sigma
	return 0.5 * (math.Erf((float64(i)+1-c)/s) - math.Erf((float64(i)-c)/s))
}

// PixelFractionDeriv returns d(PixelFraction)/dc, the sensitivity of the
// pixel's share to the emitter position along that axis.
func PixelFractionDeriv(i int, c, sigma float64) float64 {
	return gauss(float64(i), c, sigma) - gauss(float64(i)+1, c, sigma)
}

func gauss(u, c, sigma float64) float64 {
	d := (u - c) / sigma
	return math.Exp(-0.5*d*d) / (sigma * math.Sqrt(2*math.Pi))
}

// ExpectedRate returns the expected photo-electron count µ of pixel
// (i,j) for the spot: Signal share of the pixel plus per-pixel
// background.
func (s Spot) ExpectedRate(i, j int) float64 {
	return s.Signal*PixelFraction(i, s.X, s.Sigma)*PixelFraction(j, s.Y, s.Sigma) + s.Background
}

// ExpectedImage fills a w×h image (row-major, index j*w+i) with the
// expected photo-electron rate of every pixel.
func (s Spot) ExpectedImage(w, h int) []float64 {
	// Precompute the separable per-axis fractions once per row/column.
	fx := make([]float64, w)
	fy := make([]float64, h)
	for i := 0; i < w; i++ {
		fx[i] = PixelFraction(i, s.X, s.Sigma)
	}
	for j := 0; j < h; j++ {
		fy[j] = PixelFraction(j, s.Y, s.Sigma)
	}

	img := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			img[j*w+i] = s.Signal*fx[i]*fy[j] + s.Background
		}
	}
	return img
}
