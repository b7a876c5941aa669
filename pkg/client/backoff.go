package client

import "time"

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 10 * time.Second
)

// Backoff computes capped exponential reconnect delays. Every call to Next
// counts one more attempt; Reset starts over after a successful connection.
type Backoff struct {
	base     time.Duration
	max      time.Duration
	attempts int
}

func NewBackoff(base, maxDelay time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &Backoff{base: base, max: maxDelay}
}

// Next returns min(base * 2^attempts, max) after incrementing attempts.
func (b *Backoff) Next() time.Duration {
	b.attempts++
	d := b.base
	for i := 0; i < b.attempts && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}

func (b *Backoff) Reset() {
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	return b.attempts
}
