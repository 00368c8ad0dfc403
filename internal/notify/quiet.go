package notify

import "time"

const clockLayout = "15:04"

// QuietHoursActive reports whether the clock time now falls in [start, end).
// All three are zero-padded "HH:MM" strings, so lexical order is time order.
// When start > end the window wraps midnight. An empty window (start == end)
// is never active.
func QuietHoursActive(start, end, now string) bool {
	switch {
	case start == "" || end == "" || start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}

// Active reports whether the window is enabled and covers t in local time.
func (q QuietHours) Active(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	return QuietHoursActive(q.Start, q.End, t.Format(clockLayout))
}
