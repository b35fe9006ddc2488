package proactive

import (
	"testing"
	"time"
)

func TestIsQuietHour(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		hour       int
		want       bool
	}{
		{"overnight late", 22, 8, 23, true},
		{"overnight early", 22, 8, 3, true},
		{"overnight midday", 22, 8, 12, false},
		{"overnight before end", 22, 8, 7, true},
		{"overnight after end", 22, 8, 9, false},
		{"overnight start boundary", 22, 8, 22, true},
		{"overnight end boundary", 22, 8, 8, false},
		{"daytime inside", 9, 17, 12, true},
		{"daytime before", 9, 17, 8, false},
		{"daytime end exclusive", 9, 17, 17, false},
		{"equal bounds always quiet", 5, 5, 14, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuietHour(tt.start, tt.end, tt.hour); got != tt.want {
				t.Errorf("IsQuietHour(%d, %d, %d) = %v, want %v", tt.start, tt.end, tt.hour, got, tt.want)
			}
		})
	}
}

func TestQuietHoursContainsUsesLocation(t *testing.T) {
	q := QuietHours{Enabled: true, Start: 22, End: 8}
	plusTwo := time.FixedZone("plus2", 2*3600)

	// 21:30 UTC is 23:30 two hours east.
	at := time.Date(2026, 5, 4, 21, 30, 0, 0, time.UTC)
	if q.Contains(at, time.UTC) {
		t.Error("21:30 UTC should not be quiet in UTC")
	}
	if !q.Contains(at, plusTwo) {
		t.Error("21:30 UTC should be quiet at +02:00")
	}

	q.Enabled = false
	if q.Contains(at, plusTwo) {
		t.Error("disabled quiet hours are never quiet")
	}
}
