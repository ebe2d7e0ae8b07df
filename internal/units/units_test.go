package units

import "testing"

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	for _, u := range []string{"", "meters", "NM", "pixels"} {
		if IsValid(u) {
			t.Errorf("IsValid(%q) = true, want false", u)
		}
	}
}

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name        string
		lengthNM    float64
		target      string
		pixelSizeNM float64
		want        float64
	}{
		{"nm passthrough", 150, NM, 100, 150},
		{"to micrometers", 1500, UM, 100, 1.5},
		{"to pixels", 250, PX, 100, 2.5},
		{"px with zero pixel size falls back to nm", 250, PX, 0, 250},
		{"unknown unit falls back to nm", 250, "furlongs", 100, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertLength(tt.lengthNM, tt.target, tt.pixelSizeNM)
			if got != tt.want {
				t.Errorf("ConvertLength(%g, %q, %g) = %g, want %g",
					tt.lengthNM, tt.target, tt.pixelSizeNM, got, tt.want)
			}
		})
	}
}
