package resilience

import (
	"math/rand/v2"
	"time"
)

// maxBackoffShift keeps base<<shift inside time.Duration for any sane base.
const maxBackoffShift = 30

// Backoff returns base doubled per attempt (attempt 1 is base itself) with
// +/- jitterPct applied, e.g. 0.2 for 20%.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := min(max(attempt, 1)-1, maxBackoffShift)
	d := base << uint(shift)
	if d <= 0 {
		d = time.Duration(1<<63 - 1)
	}
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * min(jitterPct, 1)
	return d + time.Duration(delta)
}

// CappedBackoff is Backoff limited to ceiling.
func CappedBackoff(base, ceiling time.Duration, attempt int, jitterPct float64) time.Duration {
	d := Backoff(base, attempt, jitterPct)
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}
