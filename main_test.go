package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fluoro-data/locprec/db"
)

func TestNewMux(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "main_test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	mux := newMux(database)

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"bound endpoint reachable", "/api/bound?signal=2000&background=0&pixel_size=100&psf_sigma=150", http.StatusOK},
		{"runs endpoint reachable", "/api/runs", http.StatusOK},
		{"bad bound request", "/api/bound", http.StatusBadRequest},
		{"unmounted path", "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
		})
	}
}
