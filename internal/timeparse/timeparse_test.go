package timeparse

import (
	"testing"
	"time"
)

// Reference time: Wednesday 2026-03-11 10:00 local
var ref = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

func TestParseRelativeOffsets(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"minutes", "in 20 minutes", ref.Add(20 * time.Minute)},
		{"min abbreviation", "in 5 min", ref.Add(5 * time.Minute)},
		{"hours", "in 2 hours", ref.Add(2 * time.Hour)},
		{"days", "in 3 days", ref.AddDate(0, 0, 3)},
		{"single day", "in 1 day", ref.AddDate(0, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr, ref)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.expr, err)
			}
			if !got.Time.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.expr, got.Time, tt.want)
			}
			if got.TimeOnly {
				t.Errorf("Parse(%q) unexpectedly marked time-only", tt.expr)
			}
		})
	}
}

func TestParseNamedDates(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"today default hour", "today", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"tomorrow", "tomorrow", time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)},
		{"tomorrow with clock", "tomorrow at 6pm", time.Date(2026, 3, 12, 18, 0, 0, 0, time.UTC)},
		{"tomorrow evening", "tomorrow evening", time.Date(2026, 3, 12, 18, 0, 0, 0, time.UTC)},
		{"next week", "next week", time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)},
		{"this weekend is saturday", "this weekend", time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		{"friday", "on friday", time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)},
		{"next friday skips this week", "next friday", time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr, ref)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.expr, err)
			}
			if !got.Time.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.expr, got.Time, tt.want)
			}
		})
	}
}

func TestParseTimeOnly(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		wantHour int
		wantMin  int
	}{
		{"pm clock", "at 6pm", 18, 0},
		{"am clock", "8:30 am", 8, 30},
		{"24h clock", "at 17:45", 17, 45},
		{"noon-ish named", "in the evening", 18, 0},
		{"tonight", "tonight", 20, 0},
		{"midnight edge", "12am", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr, ref)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.expr, err)
			}
			if !got.TimeOnly {
				t.Fatalf("Parse(%q) not marked time-only", tt.expr)
			}
			if got.Time.Hour() != tt.wantHour || got.Time.Minute() != tt.wantMin {
				t.Errorf("Parse(%q) = %02d:%02d, want %02d:%02d",
					tt.expr, got.Time.Hour(), got.Time.Minute(), tt.wantHour, tt.wantMin)
			}
			if got.Time.Day() != ref.Day() {
				t.Errorf("time-only result moved the day: %v", got.Time)
			}
		})
	}
}

func TestParseRejectsNoise(t *testing.T) {
	for _, expr := range []string{"", "buy 2 lemons", "whenever"} {
		if _, err := Parse(expr, ref); err == nil {
			t.Errorf("Parse(%q) should fail", expr)
		}
	}
}

func TestApplyTimeOnly(t *testing.T) {
	base := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	update := time.Date(2026, 3, 11, 18, 30, 0, 0, time.UTC)

	got := ApplyTimeOnly(base, update)
	want := time.Date(2026, 3, 20, 18, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ApplyTimeOnly = %v, want %v", got, want)
	}
}
