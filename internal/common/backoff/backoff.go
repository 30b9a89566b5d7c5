package backoff

import (
	"math"
	"time"
)

// Delay computes the exponential restart delay for the given attempt.
// Formula: base * 2^(attempt-1), capped at max. Attempt 0 or negative
// yields zero so a first start is never delayed. Deterministic on purpose:
// the supervisor's restart schedule must be inspectable in tests.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}
