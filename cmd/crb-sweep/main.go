// crb-sweep runs the full simulate-fit-compare pipeline over a grid of
// (signal, background) combinations and reports how closely the measured
// localization precision tracks the theoretical bound.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fluoro-data/locprec/db"
	"github.com/fluoro-data/locprec/internal/compare"
	"github.com/fluoro-data/locprec/internal/fit"
	"github.com/fluoro-data/locprec/internal/report"
	"github.com/fluoro-data/locprec/internal/sim"
)

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// combo is one cell of the sweep grid.
type combo struct {
	signal     float64
	background float64
}

type sweepResult struct {
	combo      combo
	movie      *sim.Movie
	locs       []fit.Localization
	comparison compare.Comparison
	err        error
}

func main() {
	signals := flag.String("signals", "500,1000,2000,5000,10000", "Comma-separated signal levels (photo-electrons)")
	backgrounds := flag.String("backgrounds", "0,10,50", "Comma-separated background levels (photo-electrons per pixel)")
	pixelSize := flag.Float64("pixel-size", 100, "Pixel size in nm")
	psfSigma := flag.Float64("psf-sigma", 150, "PSF sigma in nm")
	frameSize := flag.Int("frame-size", 15, "Frame width and height in pixels")
	frames := flag.Int("frames", 500, "Frames (localizations) per combination")
	seed := flag.Uint64("seed", 1, "Base RNG seed; each combination offsets from it")
	workers := flag.Int("workers", 4, "Parallel pipeline workers")
	output := flag.String("output", "", "Output CSV filename (defaults to crb-sweep-<timestamp>.csv)")
	plotDir := flag.String("plot-dir", "", "Directory for the calibration curve PNG (empty to skip)")
	dbPath := flag.String("db", "", "Results database to record runs into (empty to skip)")
	flag.Parse()

	signalVals, err := parseCSVFloatSlice(*signals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid signals list: %v\n", err)
		os.Exit(1)
	}
	backgroundVals, err := parseCSVFloatSlice(*backgrounds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid backgrounds list: %v\n", err)
		os.Exit(1)
	}
	if len(signalVals) == 0 || len(backgroundVals) == 0 {
		fmt.Fprintln(os.Stderr, "need at least one signal and one background level")
		os.Exit(1)
	}

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not open database %s: %v\n", *dbPath, err)
			os.Exit(1)
		}
		defer database.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var combos []combo
	for _, n := range signalVals {
		for _, b2 := range backgroundVals {
			combos = append(combos, combo{signal: n, background: b2})
		}
	}
	log.Printf("sweeping %d combinations (%d frames each, %d workers)", len(combos), *frames, *workers)

	// Each combination is independent; fan the grid out over the workers
	// and collect in input order afterwards.
	results := make([]sweepResult, len(combos))
	indexes := make(chan int)
	var wg sync.WaitGroup
	nWorkers := *workers
	if nWorkers <= 0 {
		nWorkers = 1
	}
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = runCombo(ctx, combos[i], comboConfig{
					frameSize: *frameSize,
					pixelSize: *pixelSize,
					psfSigma:  *psfSigma,
					frames:    *frames,
					seed:      *seed + uint64(i),
				})
			}
		}()
	}
	for i := range combos {
		select {
		case indexes <- i:
		case <-ctx.Done():
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Fatalf("sweep interrupted: %v", err)
	}

	var comparisons []compare.Comparison
	failed := 0
	for _, res := range results {
		if res.err != nil {
			log.Printf("combo N=%g b2=%g failed: %v", res.combo.signal, res.combo.background, res.err)
			failed++
			continue
		}
		comparisons = append(comparisons, res.comparison)
		log.Print(res.comparison.String())

		if database != nil {
			if err := database.RecordRun(res.movie); err != nil {
				log.Printf("could not record run %s: %v", res.comparison.RunID, err)
			} else if err := database.RecordLocalizations(res.movie, res.locs); err != nil {
				log.Printf("could not record localizations for %s: %v", res.comparison.RunID, err)
			} else if err := database.RecordComparison(res.comparison); err != nil {
				log.Printf("could not record comparison for %s: %v", res.comparison.RunID, err)
			}
		}
	}

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("crb-sweep-%s.csv", time.Now().Format("20060102-150405"))
	}
	if err := writeSweepCSV(filename, comparisons); err != nil {
		log.Fatalf("could not write %s: %v", filename, err)
	}
	log.Printf("wrote %s (%d combinations, %d failed)", filename, len(comparisons), failed)

	if *plotDir != "" && len(comparisons) > 0 {
		sort.Slice(comparisons, func(a, b int) bool {
			return comparisons[a].Params.Signal < comparisons[b].Params.Signal
		})
		path, err := report.NewWriter(*plotDir).CalibrationCurve("calibration.png", comparisons)
		if err != nil {
			log.Fatalf("could not write calibration plot: %v", err)
		}
		log.Printf("wrote %s", path)
	}
}

// writeSweepCSV writes one row per comparison to path. csv.Writer
// buffers rows and only surfaces write errors on Flush, so the file is
// flushed and checked before success is reported to the caller.
func writeSweepCSV(path string, comparisons []compare.Comparison) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	w.Write([]string{"run_id", "signal", "background", "pixel_size_nm", "psf_sigma_nm", "frames",
		"bias_x_nm", "bias_y_nm", "sigma_x_nm", "sigma_y_nm", "empirical_nm", "bound_nm", "ratio"})
	for _, c := range comparisons {
		w.Write([]string{
			c.RunID,
			fmt.Sprintf("%g", c.Params.Signal),
			fmt.Sprintf("%g", c.Params.Background),
			fmt.Sprintf("%g", c.Params.PixelSize),
			fmt.Sprintf("%g", c.Params.PSFSigma),
			strconv.Itoa(c.Count),
			fmt.Sprintf("%.4f", c.BiasX),
			fmt.Sprintf("%.4f", c.BiasY),
			fmt.Sprintf("%.4f", c.SigmaX),
			fmt.Sprintf("%.4f", c.SigmaY),
			fmt.Sprintf("%.4f", c.EmpiricalSigma),
			fmt.Sprintf("%.4f", c.TheoreticalBound),
			fmt.Sprintf("%.4f", c.Ratio),
		})
	}
	w.Flush()
	return w.Error()
}

type comboConfig struct {
	frameSize int
	pixelSize float64
	psfSigma  float64
	frames    int
	seed      uint64
}

// runCombo simulates, fits, and compares one grid cell.
func runCombo(ctx context.Context, c combo, cfg comboConfig) sweepResult {
	res := sweepResult{combo: c}

	movie, err := sim.Generate(sim.Config{
		Width:       cfg.frameSize,
		Height:      cfg.frameSize,
		PixelSizeNM: cfg.pixelSize,
		PSFSigmaNM:  cfg.psfSigma,
		Signal:      c.signal,
		Background:  c.background,
		Frames:      cfg.frames,
		Seed:        cfg.seed,
	})
	if err != nil {
		res.err = fmt.Errorf("simulate: %w", err)
		return res
	}
	res.movie = movie

	fitter := fit.NewMLE(cfg.psfSigma / cfg.pixelSize)
	locs, err := fitter.Fit(ctx, movie.Frames, fit.BrightestPixelSeeds(movie.Frames))
	if err != nil {
		res.err = fmt.Errorf("fit: %w", err)
		return res
	}
	res.locs = locs

	comparison, err := compare.Evaluate(movie, locs)
	if err != nil {
		res.err = fmt.Errorf("compare: %w", err)
		return res
	}
	res.comparison = comparison
	return res
}
