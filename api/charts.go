package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleCalibrationChart renders the stored comparisons as an HTML line
// chart (go-echarts): theoretical bound and measured precision against
// signal, one pair of series per background level.
func (s *Server) handleCalibrationChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	comparisons, err := s.db.Comparisons()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load comparisons: %v", err))
		return
	}
	if len(comparisons) == 0 {
		writeJSONError(w, http.StatusNotFound, "no comparisons recorded yet")
		return
	}

	// Distinct signals form the x axis; series are grouped by background.
	signalSet := make(map[float64]bool)
	type point struct{ bound, empirical float64 }
	series := make(map[float64]map[float64]point)
	for _, c := range comparisons {
		signalSet[c.Params.Signal] = true
		if series[c.Params.Background] == nil {
			series[c.Params.Background] = make(map[float64]point)
		}
		series[c.Params.Background][c.Params.Signal] = point{c.TheoreticalBound, c.EmpiricalSigma}
	}

	signals := make([]float64, 0, len(signalSet))
	for n := range signalSet {
		signals = append(signals, n)
	}
	sort.Float64s(signals)

	backgrounds := make([]float64, 0, len(series))
	for b2 := range series {
		backgrounds = append(backgrounds, b2)
	}
	sort.Float64s(backgrounds)

	xLabels := make([]string, len(signals))
	for i, n := range signals {
		xLabels[i] = fmt.Sprintf("%g", n)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Localization precision calibration", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Measured precision vs. Cramer-Rao bound",
			Subtitle: fmt.Sprintf("%d runs", len(comparisons)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Precision (nm)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Signal (photo-electrons)"}),
	)
	line.SetXAxis(xLabels)

	for _, b2 := range backgrounds {
		boundData := make([]opts.LineData, len(signals))
		empData := make([]opts.LineData, len(signals))
		for i, n := range signals {
			if pt, ok := series[b2][n]; ok {
				boundData[i] = opts.LineData{Value: pt.bound}
				empData[i] = opts.LineData{Value: pt.empirical}
			}
		}
		line.AddSeries(fmt.Sprintf("bound b²=%g", b2), boundData)
		line.AddSeries(fmt.Sprintf("measured b²=%g", b2), empData)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
