package rest

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits delay*n after the n-th failed attempt and stops once maxAttempts
// attempts were made.
type linearBackOff struct {
	delay       time.Duration
	maxAttempts int
	failed      int
}

func newLinearBackOff(delay time.Duration, maxAttempts int) *linearBackOff {
	return &linearBackOff{
		delay:       max(delay, 0),
		maxAttempts: maxAttempts,
	}
}

func (b *linearBackOff) Reset() {
	b.failed = 0
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.failed++
	if b.failed >= b.maxAttempts {
		return backoff.Stop
	}
	return b.delay * time.Duration(b.failed)
}
