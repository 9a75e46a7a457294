package worker

import "time"

// nextBackoff grows current by multiplier, never below base and never above
// ceiling. The result is non-decreasing in current.
func nextBackoff(current, base, ceiling time.Duration, multiplier float64) time.Duration {
	if ceiling < base {
		ceiling = base
	}
	if current < base {
		current = base
	}
	if multiplier < 1 {
		multiplier = 1
	}

	next := time.Duration(float64(current) * multiplier)
	if next < current || next > ceiling {
		// overflow or past the ceiling
		return ceiling
	}
	return next
}
