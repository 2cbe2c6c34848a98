package safety

import (
	"errors"
	"sync"
	"time"

	"helmlink/internal/autopilot"
)

var ErrQueueFull = errors.New("safety: command queue full")

type queueEntry struct {
	cmd      *autopilot.Command
	enqueued time.Time
}

// CommandQueue is the bounded, priority-ordered staging area between the
// command API and the wire. Emergency commands outrank heading adjustments,
// which outrank mode changes; within a priority it is FIFO. Entries unsent
// after the TTL expire instead of reaching the wire late.
type CommandQueue struct {
	mu      sync.Mutex
	entries []queueEntry
	max     int
	ttl     time.Duration
}

func NewCommandQueue(max int, ttl time.Duration) *CommandQueue {
	if max <= 0 {
		max = 16
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CommandQueue{max: max, ttl: ttl}
}

func (q *CommandQueue) Push(cmd *autopilot.Command, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.max {
		return ErrQueueFull
	}
	e := queueEntry{cmd: cmd, enqueued: now}
	// insert before the first entry of strictly lower priority
	at := len(q.entries)
	for i, cur := range q.entries {
		if cur.cmd.Priority < cmd.Priority {
			at = i
			break
		}
	}
	q.entries = append(q.entries, queueEntry{})
	copy(q.entries[at+1:], q.entries[at:])
	q.entries[at] = e
	return nil
}

// Pop returns the highest-priority unexpired entry along with its original
// enqueue time, so a failed send can be requeued without restarting the TTL
// clock. Entries older than the TTL are dropped and returned via the last
// value so the manager can resolve them and emit events.
func (q *CommandQueue) Pop(now time.Time) (*autopilot.Command, time.Time, []*autopilot.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired []*autopilot.Command
	for len(q.entries) > 0 {
		e := q.entries[0]
		q.entries = q.entries[1:]
		if now.Sub(e.enqueued) > q.ttl {
			expired = append(expired, e.cmd)
			continue
		}
		return e.cmd, e.enqueued, expired
	}
	return nil, time.Time{}, expired
}

func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
