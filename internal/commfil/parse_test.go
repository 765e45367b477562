package commfil

import (
	"testing"
)

func TestParseStartTime(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"Start Time 12:34:56", "12:34:56", false},
		{"Start Time  9:05:07", "09:05:07", false},
		{"Start Time 12:34:56\r", "12:34:56", false},
		{"Start Time garbage", "", true},
	}
	for _, tt := range tests {
		got, err := parseStartTime([]byte(tt.line))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseStartTime(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseStartTime(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestParseTimePoint(t *testing.T) {
	tests := []struct {
		line      string
		wantTime  int
		wantCount int
		wantErr   bool
	}{
		{"{t    10R:  1530", 10, 1530, false},
		{"{t 300R:0", 300, 0, false},
		{"{t    10R:  1530}extra", 10, 1530, false},
		{"{t R:", 0, 0, true},
		{"no time here", 0, 0, true},
	}
	for _, tt := range tests {
		gotTime, gotCount, err := parseTimePoint([]byte(tt.line))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimePoint(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if gotTime != tt.wantTime || gotCount != tt.wantCount {
			t.Errorf("parseTimePoint(%q) = (%d, %d), want (%d, %d)",
				tt.line, gotTime, gotCount, tt.wantTime, tt.wantCount)
		}
	}
}

func TestParseTimePreamble(t *testing.T) {
	name, date, ok := parseTimePreamble([]byte("Name:< Tritium >12 Mar.2026"))
	if !ok {
		t.Fatal("expected time preamble to parse")
	}
	if name != "Tritium" {
		t.Errorf("name = %q, want %q", name, "Tritium")
	}
	if date != "12 Mar 2026" {
		t.Errorf("date = %q, want %q", date, "12 Mar 2026")
	}

	if _, _, ok := parseTimePreamble([]byte("Start Time 12:00:00")); ok {
		t.Error("unrelated line should not parse as a time preamble")
	}
}

func TestParseSpectrumPreamble(t *testing.T) {
	name, date, ok := parseSpectrumPreamble([]byte("[ CPM - Assay ]  3 Jun.2026"))
	if !ok {
		t.Fatal("expected spectrum preamble to parse")
	}
	if name != "CPM - Assay" {
		t.Errorf("name = %q, want %q", name, "CPM - Assay")
	}
	if date != "3 Jun 2026" {
		t.Errorf("date = %q, want %q", date, "3 Jun 2026")
	}
}

func TestParseAltTimeLine(t *testing.T) {
	name, sample, ok := parseAltTimeLine([]byte("[< Tritium >S:  7"))
	if !ok {
		t.Fatal("expected alternating time line to parse")
	}
	if name != "Tritium" {
		t.Errorf("name = %q, want %q", name, "Tritium")
	}
	if sample != 7 {
		t.Errorf("sample = %d, want 7", sample)
	}

	if _, _, ok := parseAltTimeLine([]byte("{t 10R: 100")); ok {
		t.Error("time point line should not parse as an alternating line")
	}
}

func TestParseBitsum(t *testing.T) {
	got, err := parseBitsum([]byte("Bitsum: 48213"))
	if err != nil {
		t.Fatalf("parseBitsum failed: %v", err)
	}
	if got != 48213 {
		t.Errorf("parseBitsum = %d, want 48213", got)
	}

	if _, err := parseBitsum([]byte("Bitsum:???")); err == nil {
		t.Error("expected error for malformed bitsum line")
	}
}
