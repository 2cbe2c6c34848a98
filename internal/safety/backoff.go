package safety

import (
	"context"
	"math/rand"
	"time"
)

// Backoff produces full-jitter exponential delays: each attempt doubles the
// ceiling up to Max, and the actual delay is uniform in [0, ceiling].
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	if max < initial {
		max = 30 * time.Second
	}
	return &Backoff{Initial: initial, Max: max}
}

func (b *Backoff) Next() time.Duration {
	ceil := b.Initial << b.attempt
	if ceil > b.Max || ceil <= 0 {
		ceil = b.Max
	} else {
		b.attempt++
	}
	return time.Duration(rand.Int63n(int64(ceil) + 1))
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

// Sleep waits for the next backoff delay or until ctx is done.
func (b *Backoff) Sleep(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
