package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluoro-data/locprec/internal/compare"
	"github.com/fluoro-data/locprec/internal/crb"
	"github.com/fluoro-data/locprec/internal/fsutil"
)

func sampleComparisons() []compare.Comparison {
	var out []compare.Comparison
	for _, b2 := range []float64{0, 50} {
		for _, n := range []float64{500, 2000, 8000} {
			p := crb.Params{Signal: n, Background: b2, PixelSize: 100, PSFSigma: 150}
			bound, _ := crb.ComputeBound(p)
			out = append(out, compare.Comparison{
				RunID:            "r",
				Params:           p,
				Count:            100,
				EmpiricalSigma:   bound * 1.1,
				TheoreticalBound: bound,
				Ratio:            1.1,
			})
		}
	}
	return out
}

func TestCalibrationCurve(t *testing.T) {
	t.Parallel()

	mem := fsutil.NewMemory()
	w := &Writer{FS: mem, Dir: "plots"}

	path, err := w.CalibrationCurve("calibration.png", sampleComparisons())
	require.NoError(t, err)
	assert.Equal(t, "plots/calibration.png", path)

	data, err := mem.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	// PNG magic bytes.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}

func TestCalibrationCurveEmpty(t *testing.T) {
	t.Parallel()

	w := &Writer{FS: fsutil.NewMemory(), Dir: "plots"}
	_, err := w.CalibrationCurve("calibration.png", nil)
	require.Error(t, err)
}
