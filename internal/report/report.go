// Package report renders calibration curves: the theoretical bound as a
// function of signal, with empirically measured precision overlaid, one
// series per background level.
package report

import (
	"fmt"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/fluoro-data/locprec/internal/compare"
	"github.com/fluoro-data/locprec/internal/fsutil"
)

// Writer renders plots into a directory on the given filesystem.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter returns a Writer targeting dir on the real filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OS{}, Dir: dir}
}

// CalibrationCurve writes a PNG comparing empirical sigma against the
// theoretical bound over signal, grouped by background level. Returns
// the path written.
func (w *Writer) CalibrationCurve(name string, comparisons []compare.Comparison) (string, error) {
	if len(comparisons) == 0 {
		return "", fmt.Errorf("report: no comparisons to plot")
	}
	if err := w.FS.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", w.Dir, err)
	}

	p := plot.New()
	p.Title.Text = "Localization precision vs. theoretical bound"
	p.X.Label.Text = "Signal (photo-electrons)"
	p.Y.Label.Text = "Precision (nm)"

	// One bound line and one empirical scatter per background level.
	byBackground := make(map[float64][]compare.Comparison)
	for _, c := range comparisons {
		byBackground[c.Params.Background] = append(byBackground[c.Params.Background], c)
	}
	backgrounds := make([]float64, 0, len(byBackground))
	for b2 := range byBackground {
		backgrounds = append(backgrounds, b2)
	}
	sort.Float64s(backgrounds)

	for i, b2 := range backgrounds {
		group := byBackground[b2]
		sort.Slice(group, func(a, b int) bool {
			return group[a].Params.Signal < group[b].Params.Signal
		})

		boundPts := make(plotter.XYs, 0, len(group))
		empPts := make(plotter.XYs, 0, len(group))
		for _, c := range group {
			boundPts = append(boundPts, plotter.XY{X: c.Params.Signal, Y: c.TheoreticalBound})
			empPts = append(empPts, plotter.XY{X: c.Params.Signal, Y: c.EmpiricalSigma})
		}

		line, err := plotter.NewLine(boundPts)
		if err != nil {
			return "", err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("bound b²=%g", b2), line)

		scatter, err := plotter.NewScatter(empPts)
		if err != nil {
			return "", err
		}
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Shape = plotutil.Shape(i)
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("measured b²=%g", b2), scatter)
	}
	p.Legend.Top = true

	path := filepath.Join(w.Dir, name)
	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("report: render %s: %w", path, err)
	}
	f, err := w.FS.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
