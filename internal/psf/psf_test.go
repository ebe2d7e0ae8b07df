package psf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFractionSumsToOne(t *testing.T) {
	t.Parallel()

	// Over a window much wider than sigma, the per-pixel fractions of a
	// unit Gaussian must sum to 1.
	sum := 0.0
	for i := -50; i < 50; i++ {
		sum += PixelFraction(i, 0.37, 1.4)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestPixelFractionSymmetry(t *testing.T) {
	t.Parallel()

	// An emitter at a pixel boundary splits evenly between neighbors.
	left := PixelFraction(-1, 0, 1.2)
	right := PixelFraction(0, 0, 1.2)
	assert.InDelta(t, left, right, 1e-14)
}

func TestPixelFractionDeriv(t *testing.T) {
	t.Parallel()

	// Analytic derivative matches a central finite difference.
	const h = 1e-6
	for _, c := range []float64{0.0, 0.5, 2.3} {
		got := PixelFractionDeriv(1, c, 1.5)
		want := (PixelFraction(1, c+h, 1.5) - PixelFraction(1, c-h, 1.5)) / (2 * h)
		assert.InDelta(t, want, got, 1e-8, "center %g", c)
	}
}

func TestExpectedImage(t *testing.T) {
	t.Parallel()

	spot := Spot{X: 5.5, Y: 5.5, Sigma: 1.2, Signal: 1000, Background: 3}
	img := spot.ExpectedImage(11, 11)
	require.Len(t, img, 121)

	// Total counts: the window captures essentially the whole PSF, so the
	// sum is signal plus background times pixel count.
	total := 0.0
	peak, peakIdx := math.Inf(-1), -1
	for idx, v := range img {
		assert.Greater(t, v, 0.0)
		total += v
		if v > peak {
			peak, peakIdx = v, idx
		}
	}
	assert.InDelta(t, 1000+3*121, total, 1.0)

	// Brightest pixel is the one containing the emitter.
	assert.Equal(t, 5*11+5, peakIdx)

	// Separable model: ExpectedImage agrees with per-pixel ExpectedRate.
	assert.InDelta(t, spot.ExpectedRate(5, 5), img[5*11+5], 1e-14)
	assert.InDelta(t, spot.ExpectedRate(2, 8), img[8*11+2], 1e-14)
}
