package crb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBoundZeroBackground(t *testing.T) {
	t.Parallel()

	// With no background the bound is the Poisson limit σa/√N exactly.
	cases := []struct {
		name string
		p    Params
	}{
		{"reference scenario", Params{Signal: 2000, Background: 0, PixelSize: 100, PSFSigma: 150}},
		{"low signal", Params{Signal: 10, Background: 0, PixelSize: 65, PSFSigma: 130}},
		{"high signal", Params{Signal: 1e6, Background: 0, PixelSize: 100, PSFSigma: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeBound(tc.p)
			require.NoError(t, err)
			want := tc.p.PSFSigma / math.Sqrt(tc.p.Signal)
			assert.InDelta(t, want, got, 1e-12)
		})
	}
}

func TestComputeBoundMonotonicInSignal(t *testing.T) {
	t.Parallel()

	prev := math.Inf(1)
	for _, n := range []float64{100, 500, 2000, 10000, 100000} {
		bound, err := ComputeBound(Params{Signal: n, Background: 50, PixelSize: 100, PSFSigma: 150})
		require.NoError(t, err)
		assert.Less(t, bound, prev, "bound must strictly decrease as signal grows (N=%g)", n)
		prev = bound
	}
}

func TestComputeBoundMonotonicInBackground(t *testing.T) {
	t.Parallel()

	prev := 0.0
	for _, b2 := range []float64{0, 1, 10, 50, 200, 1000} {
		bound, err := ComputeBound(Params{Signal: 2000, Background: b2, PixelSize: 100, PSFSigma: 150})
		require.NoError(t, err)
		assert.Greater(t, bound, prev, "bound must strictly increase with background (b2=%g)", b2)
		prev = bound
	}
}

func TestComputeBoundScaleInvariance(t *testing.T) {
	t.Parallel()

	base := Params{Signal: 2000, Background: 50, PixelSize: 100, PSFSigma: 150}
	ref, err := ComputeBound(base)
	require.NoError(t, err)

	for _, k := range []float64{0.1, 0.5, 2, 10} {
		scaled := base
		scaled.PixelSize *= k
		scaled.PSFSigma *= k
		got, err := ComputeBound(scaled)
		require.NoError(t, err)
		// Scaling both lengths by k scales the bound by k.
		assert.InEpsilon(t, k*ref, got, 1e-6, "scale factor %g", k)
	}
}

func TestComputeBoundLargeSignalLimit(t *testing.T) {
	t.Parallel()

	bound, err := ComputeBound(Params{Signal: 1e12, Background: 50, PixelSize: 100, PSFSigma: 150})
	require.NoError(t, err)
	assert.Less(t, bound, 0.01, "bound should vanish as signal grows without limit")
	assert.GreaterOrEqual(t, bound, 0.0)
}

func TestComputeBoundReferenceScenario(t *testing.T) {
	t.Parallel()

	// N=2000, b²=50, a=100nm, σa=150nm: the bound sits a little above the
	// 3.35nm no-background limit, in the few-nanometer range the published
	// example reports.
	p := Params{Signal: 2000, Background: 50, PixelSize: 100, PSFSigma: 150}
	bound, err := ComputeBound(p)
	require.NoError(t, err)

	noBackground := p.PSFSigma / math.Sqrt(p.Signal)
	assert.Greater(t, bound, noBackground)
	assert.Less(t, bound, 50.0, "bound should be nanometers to tens of nanometers")
	assert.False(t, math.IsNaN(bound))
}

func TestComputeBoundDeterministic(t *testing.T) {
	t.Parallel()

	p := Params{Signal: 3137, Background: 21.5, PixelSize: 80, PSFSigma: 120}
	first, err := ComputeBound(p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ComputeBound(p)
		require.NoError(t, err)
		assert.Equal(t, first, again, "repeated evaluation must be bit-identical")
	}
}

func TestComputeBoundInvalidArguments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    Params
	}{
		{"zero signal", Params{Signal: 0, Background: 50, PixelSize: 100, PSFSigma: 150}},
		{"negative signal", Params{Signal: -10, Background: 50, PixelSize: 100, PSFSigma: 150}},
		{"zero pixel size", Params{Signal: 2000, Background: 50, PixelSize: 0, PSFSigma: 150}},
		{"negative pixel size", Params{Signal: 2000, Background: 50, PixelSize: -1, PSFSigma: 150}},
		{"zero psf sigma", Params{Signal: 2000, Background: 50, PixelSize: 100, PSFSigma: 0}},
		{"negative background", Params{Signal: 2000, Background: -5, PixelSize: 100, PSFSigma: 150}},
		{"nan signal", Params{Signal: math.NaN(), Background: 50, PixelSize: 100, PSFSigma: 150}},
		{"inf background", Params{Signal: 2000, Background: math.Inf(1), PixelSize: 100, PSFSigma: 150}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bound, err := ComputeBound(tc.p)
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Zero(t, bound)
		})
	}
}

func TestComputeBoundNeverNegativeOrNaN(t *testing.T) {
	t.Parallel()

	for _, n := range []float64{1, 10, 1e3, 1e6} {
		for _, b2 := range []float64{0, 0.01, 1, 100, 1e4} {
			bound, err := ComputeBound(Params{Signal: n, Background: b2, PixelSize: 100, PSFSigma: 150})
			require.NoError(t, err, "N=%g b2=%g", n, b2)
			assert.False(t, math.IsNaN(bound), "N=%g b2=%g", n, b2)
			assert.GreaterOrEqual(t, bound, 0.0, "N=%g b2=%g", n, b2)
		}
	}
}

func TestComputeBoundWithTinyBudgetFails(t *testing.T) {
	t.Parallel()

	// A one-interval budget cannot resolve the ln(t) endpoint, so the
	// estimator must surface a convergence failure instead of a value.
	_, err := ComputeBoundWith(
		Params{Signal: 2000, Background: 50, PixelSize: 100, PSFSigma: 150},
		Options{RelTol: 1e-14, MaxIntervals: 1},
	)
	require.ErrorIs(t, err, ErrNoConvergence)
}

func TestComputeBoundRelaxedToleranceAgrees(t *testing.T) {
	t.Parallel()

	p := Params{Signal: 2000, Background: 50, PixelSize: 100, PSFSigma: 150}
	tight, err := ComputeBoundWith(p, Options{RelTol: 1e-10, MaxIntervals: 1024})
	require.NoError(t, err)
	loose, err := ComputeBoundWith(p, Options{RelTol: 1e-6, MaxIntervals: 256})
	require.NoError(t, err)
	assert.InEpsilon(t, tight, loose, 1e-4)
}

func TestComputeBounds(t *testing.T) {
	t.Parallel()

	t.Run("order preserving and independent failures", func(t *testing.T) {
		t.Parallel()
		params := []Params{
			{Signal: 2000, Background: 50, PixelSize: 100, PSFSigma: 150},
			{Signal: -1, Background: 50, PixelSize: 100, PSFSigma: 150},
			{Signal: 2000, Background: 0, PixelSize: 100, PSFSigma: 150},
		}
		results := ComputeBounds(params, DefaultOptions(), 4)
		require.Len(t, results, 3)

		require.NoError(t, results[0].Err)
		assert.Greater(t, results[0].Bound, 0.0)

		require.ErrorIs(t, results[1].Err, ErrInvalidArgument)

		require.NoError(t, results[2].Err)
		assert.InDelta(t, 150/math.Sqrt(2000), results[2].Bound, 1e-12)
	})

	t.Run("matches serial evaluation", func(t *testing.T) {
		t.Parallel()
		var params []Params
		for _, n := range []float64{100, 1000, 10000} {
			for _, b2 := range []float64{0, 10, 100} {
				params = append(params, Params{Signal: n, Background: b2, PixelSize: 100, PSFSigma: 150})
			}
		}
		parallel := ComputeBounds(params, DefaultOptions(), 8)
		for i, p := range params {
			serial, err := ComputeBound(p)
			require.NoError(t, err)
			require.NoError(t, parallel[i].Err)
			assert.Equal(t, serial, parallel[i].Bound, "index %d", i)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ComputeBounds(nil, DefaultOptions(), 4))
	})
}
