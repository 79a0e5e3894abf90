package pipeline

import (
	"math/rand/v2"
	"time"
)

// backoffDelay computes the sleep before retry number attempt+1, doubling
// from base per completed attempt, capped, with full jitter over the upper
// half of the window so concurrent retries spread out.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap || d <= 0 {
			d = cap
			break
		}
	}
	if d > cap {
		d = cap
	}

	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}
