// Package db persists benchmark runs, fitted localizations, and
// comparison summaries in sqlite.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fluoro-data/locprec/internal/compare"
	"github.com/fluoro-data/locprec/internal/fit"
	"github.com/fluoro-data/locprec/internal/sim"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and
// applies any pending migrations. Use ":memory:" for tests.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: migrating %s: %w", path, err)
	}
	return db, nil
}

// Run is one recorded benchmark run.
type Run struct {
	RunID       string    `json:"run_id"`
	Signal      float64   `json:"signal"`
	Background  float64   `json:"background"`
	PixelSizeNM float64   `json:"pixel_size_nm"`
	PSFSigmaNM  float64   `json:"psf_sigma_nm"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	Frames      int       `json:"frames"`
	Seed        uint64    `json:"seed"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordRun stores the movie's parameters under its run ID.
func (db *DB) RecordRun(m *sim.Movie) error {
	_, err := db.Exec(`
		INSERT INTO runs (run_id, signal, background, pixel_size_nm, psf_sigma_nm, frame_width, frame_height, frames, seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Config.Signal, m.Config.Background, m.Config.PixelSizeNM, m.Config.PSFSigmaNM,
		m.Config.Width, m.Config.Height, m.Config.Frames, int64(m.Config.Seed))
	if err != nil {
		return fmt.Errorf("db: record run %s: %w", m.RunID, err)
	}
	return nil
}

// RecordLocalizations stores fitted positions for a run, pairing each
// with its ground truth when the movie is available.
func (db *DB) RecordLocalizations(m *sim.Movie, locs []fit.Localization) error {
	truth := make(map[int]sim.GroundTruth, len(m.Truth))
	for _, gt := range m.Truth {
		truth[gt.Frame] = gt
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO localizations (run_id, frame, x_px, y_px, signal, background, truth_x_px, truth_y_px)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, loc := range locs {
		var truthX, truthY interface{}
		if gt, ok := truth[loc.Frame]; ok {
			truthX, truthY = gt.X, gt.Y
		}
		if _, err := stmt.Exec(m.RunID, loc.Frame, loc.X, loc.Y, loc.Signal, loc.Background, truthX, truthY); err != nil {
			return fmt.Errorf("db: record localization frame %d: %w", loc.Frame, err)
		}
	}
	return tx.Commit()
}

// RecordComparison stores a run's summary statistics.
func (db *DB) RecordComparison(c compare.Comparison) error {
	_, err := db.Exec(`
		INSERT INTO comparisons (run_id, count, bias_x_nm, bias_y_nm, sigma_x_nm, sigma_y_nm, empirical_nm, bound_nm, ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Count, c.BiasX, c.BiasY, c.SigmaX, c.SigmaY, c.EmpiricalSigma, c.TheoreticalBound, c.Ratio)
	if err != nil {
		return fmt.Errorf("db: record comparison %s: %w", c.RunID, err)
	}
	return nil
}

// Runs returns recorded runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT run_id, signal, background, pixel_size_nm, psf_sigma_nm, frame_width, frame_height, frames, seed, created_at
		FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var seed int64
		if err := rows.Scan(&r.RunID, &r.Signal, &r.Background, &r.PixelSizeNM, &r.PSFSigmaNM,
			&r.FrameWidth, &r.FrameHeight, &r.Frames, &seed, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Comparison returns the stored summary for a run.
func (db *DB) Comparison(runID string) (compare.Comparison, error) {
	var c compare.Comparison
	err := db.QueryRow(`
		SELECT c.run_id, c.count, c.bias_x_nm, c.bias_y_nm, c.sigma_x_nm, c.sigma_y_nm,
		       c.empirical_nm, c.bound_nm, c.ratio,
		       r.signal, r.background, r.pixel_size_nm, r.psf_sigma_nm
		FROM comparisons c JOIN runs r ON r.run_id = c.run_id
		WHERE c.run_id = ?`, runID).Scan(
		&c.RunID, &c.Count, &c.BiasX, &c.BiasY, &c.SigmaX, &c.SigmaY,
		&c.EmpiricalSigma, &c.TheoreticalBound, &c.Ratio,
		&c.Params.Signal, &c.Params.Background, &c.Params.PixelSize, &c.Params.PSFSigma)
	if err != nil {
		return compare.Comparison{}, fmt.Errorf("db: comparison %s: %w", runID, err)
	}
	return c, nil
}

// Comparisons returns all stored summaries joined with their run
// parameters, ordered by signal then background. This is the calibration
// curve's data source.
func (db *DB) Comparisons() ([]compare.Comparison, error) {
	rows, err := db.Query(`
		SELECT c.run_id, c.count, c.bias_x_nm, c.bias_y_nm, c.sigma_x_nm, c.sigma_y_nm,
		       c.empirical_nm, c.bound_nm, c.ratio,
		       r.signal, r.background, r.pixel_size_nm, r.psf_sigma_nm
		FROM comparisons c JOIN runs r ON r.run_id = c.run_id
		ORDER BY r.signal, r.background`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []compare.Comparison
	for rows.Next() {
		var c compare.Comparison
		if err := rows.Scan(&c.RunID, &c.Count, &c.BiasX, &c.BiasY, &c.SigmaX, &c.SigmaY,
			&c.EmpiricalSigma, &c.TheoreticalBound, &c.Ratio,
			&c.Params.Signal, &c.Params.Background, &c.Params.PixelSize, &c.Params.PSFSigma); err != nil {
			return nil, err
		}
		all = append(all, c)
	}
	return all, rows.Err()
}

// LocalizationCount returns how many localizations a run recorded.
func (db *DB) LocalizationCount(runID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM localizations WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
