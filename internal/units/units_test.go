package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit string
		want bool
	}{
		{CPS, true},
		{CPM, true},
		{"", false},
		{"CPS", false},
		{"bq", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestConvertRate(t *testing.T) {
	tests := []struct {
		name    string
		rateCPM float64
		unit    string
		want    float64
	}{
		{"cpm passthrough", 1530, CPM, 1530},
		{"cpm to cps", 1530, CPS, 25.5},
		{"zero", 0, CPS, 0},
		{"unknown unit falls back to cpm", 600, "bq", 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertRate(tt.rateCPM, tt.unit)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConvertRate(%v, %q) = %v, want %v", tt.rateCPM, tt.unit, got, tt.want)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	if got := Label(CPM); got != "Counts per minute" {
		t.Errorf("Label(cpm) = %q", got)
	}
	if got := Label(CPS); got != "Counts per second" {
		t.Errorf("Label(cps) = %q", got)
	}
	if got := Label("other"); got != "other" {
		t.Errorf("Label(other) = %q", got)
	}
}
