package proactive

import "time"

// IsQuietHour reports whether hour falls in the quiet window [start, end).
// A window with start >= end wraps past midnight; start == end is quiet
// all day.
func IsQuietHour(start, end, hour int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// QuietHours is a daily window during which nothing is sent.
type QuietHours struct {
	Enabled bool
	Start   int
	End     int
}

// Contains reports whether t, converted to loc, is inside the window.
func (q QuietHours) Contains(t time.Time, loc *time.Location) bool {
	if !q.Enabled {
		return false
	}
	if loc != nil {
		t = t.In(loc)
	}
	return IsQuietHour(q.Start, q.End, t.Hour())
}
