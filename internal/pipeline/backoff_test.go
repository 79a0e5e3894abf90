package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Hour

	// Jitter draws from [ceiling/2, ceiling], so the lower bound alone
	// proves the doubling.
	for attempt := 1; attempt <= 5; attempt++ {
		ceiling := base << (attempt - 1)
		for i := 0; i < 50; i++ {
			d := backoffDelay(base, cap, attempt)
			assert.GreaterOrEqual(t, d, ceiling/2, "attempt %d", attempt)
			assert.LessOrEqual(t, d, ceiling, "attempt %d", attempt)
		}
	}
}

func TestBackoffDelayRespectsCap(t *testing.T) {
	base := 500 * time.Millisecond
	cap := 2 * time.Second

	for i := 0; i < 100; i++ {
		d := backoffDelay(base, cap, 50)
		assert.LessOrEqual(t, d, cap)
		assert.GreaterOrEqual(t, d, cap/2)
	}
}

func TestBackoffDelayHugeAttemptDoesNotOverflow(t *testing.T) {
	d := backoffDelay(time.Second, 30*time.Second, 1000)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 30*time.Second)
}

func TestBackoffDelayJitters(t *testing.T) {
	base := time.Second
	cap := time.Hour

	seen := map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		seen[backoffDelay(base, cap, 4)] = true
	}
	// 200 draws over a 4s window landing on one value would mean the
	// jitter is gone.
	assert.Greater(t, len(seen), 1)
}
