package safety

import (
	"sync"
	"time"
)

// Breaker stops connection attempts after repeated failures. Closed passes
// everything; after Threshold consecutive failures it opens for Cooldown,
// then permits a single half-open probe whose outcome closes or re-opens it.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown}
}

// Allow reports whether an attempt may proceed now.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.probing {
		return false
	}
	if now.Sub(b.openedAt) >= b.Cooldown {
		b.probing = true
		return true
	}
	return false
}

func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.open = false
	b.probing = false
	b.mu.Unlock()
}

// Failure records one failed attempt; returns true when this failure opened
// (or re-opened) the breaker.
func (b *Breaker) Failure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.probing {
		// failed probe: straight back to open, restart the cooldown
		b.probing = false
		b.openedAt = now
		return true
	}
	if !b.open && b.failures >= b.Threshold {
		b.open = true
		b.openedAt = now
		return true
	}
	return false
}

func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
