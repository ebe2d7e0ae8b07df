// Package api exposes the bound estimator and stored benchmark results
// over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fluoro-data/locprec/db"
	"github.com/fluoro-data/locprec/internal/crb"
	"github.com/fluoro-data/locprec/internal/units"
)

type Server struct {
	db *db.DB
}

func NewServer(database *db.DB) *Server {
	return &Server{db: database}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/bound", s.handleBound)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/comparison", s.handleComparison)
	mux.HandleFunc("/charts/calibration", s.handleCalibrationChart)
	mux.HandleFunc("/", s.handleHome)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("locprec: localization precision benchmarking\n"))
}

// boundResponse is the /bound payload. The bound is reported in the
// requested unit alongside the raw nm value.
type boundResponse struct {
	Params  crb.Params `json:"params"`
	BoundNM float64    `json:"bound_nm"`
	Bound   float64    `json:"bound"`
	Units   string     `json:"units"`
}

// handleBound computes the Cramer-Rao bound for query parameters:
// signal, background, pixel_size (nm), psf_sigma (nm), optional units.
func (s *Server) handleBound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := crb.Params{}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"signal", &p.Signal},
		{"background", &p.Background},
		{"pixel_size", &p.PixelSize},
		{"psf_sigma", &p.PSFSigma},
	}
	for _, f := range fields {
		raw := r.URL.Query().Get(f.name)
		if raw == "" {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("missing query parameter %q", f.name))
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", f.name, err))
			return
		}
		*f.dst = v
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.NM
	}
	if !units.IsValid(unit) {
		writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid units %q, want one of: %s", unit, units.GetValidUnitsString()))
		return
	}

	bound, err := crb.ComputeBound(p)
	switch {
	case errors.Is(err, crb.ErrInvalidArgument):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, crb.ErrNoConvergence):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, boundResponse{
		Params:  p,
		BoundNM: bound,
		Bound:   units.ConvertLength(bound, unit, p.PixelSize),
		Units:   unit,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	runs, err := s.db.Runs(limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing query parameter \"run_id\"")
		return
	}

	c, err := s.db.Comparison(runID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no comparison for run %s", runID))
		return
	}
	writeJSON(w, c)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
