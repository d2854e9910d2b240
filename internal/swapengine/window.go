package swapengine

import "time"

// RollWindow advances a fixed window that started at start so that it
// contains now. The start only moves forward, in whole multiples of d, and
// reset is true exactly when now has crossed the current window's end.
// A now earlier than start (clock step back) leaves the window untouched.
func RollWindow(start, now time.Time, d time.Duration) (time.Time, bool) {
	if d <= 0 {
		return start, false
	}
	if start.IsZero() {
		return now.Truncate(d), true
	}
	if now.Before(start.Add(d)) {
		return start, false
	}
	n := now.Sub(start) / d
	return start.Add(n * d), true
}
