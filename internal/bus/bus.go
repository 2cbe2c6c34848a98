// Package bus fans state updates and safety events out to external
// consumers. Delivery is latest-value-wins: a slow subscriber drops
// intermediate values and always receives the most recent one, so producers
// never stall on consumers.
package bus

import (
	"sync"
	"time"

	"helmlink/internal/state"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SafetyEvent is one immutable fault or recovery record.
type SafetyEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Severity  Severity          `json:"severity"`
	Kind      string            `json:"kind"`
	Context   map[string]string `json:"context,omitempty"`
}

// Event kinds emitted by the safety manager.
const (
	EventTransportDown      = "transport_down"
	EventTransportUp        = "transport_up"
	EventTransportDegraded  = "transport_degraded"
	EventTransportRecovered = "transport_recovered"
	EventHeartbeatStale     = "heartbeat_stale"
	EventFailSafeDisengage  = "failsafe_disengage"
	EventBreakerOpen        = "breaker_open"
	EventBreakerClosed      = "breaker_closed"
	EventCommandExpired     = "command_expired"
	EventPilotAlarm         = "pilot_alarm"
	EventResyncComplete     = "resync_complete"
)

type updateSub struct {
	channel string // "" subscribes to every channel
	ch      chan state.Update
}

// Bus carries two streams: per-channel state updates and safety events. It
// also keeps the append-only safety event log, pruned by retention.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	updates   map[int]*updateSub
	events    map[int]chan SafetyEvent
	latest    map[string]state.Update
	log       []SafetyEvent
	retention time.Duration
}

func New(retention time.Duration) *Bus {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Bus{
		updates:   make(map[int]*updateSub),
		events:    make(map[int]chan SafetyEvent),
		latest:    make(map[string]state.Update),
		retention: retention,
	}
}

// Subscribe delivers updates for one channel, or for all channels when
// channel is empty. New subscribers immediately receive the latest known
// value, if any.
func (b *Bus) Subscribe(channel string) (int, <-chan state.Update) {
	ch := make(chan state.Update, 1)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.updates[id] = &updateSub{channel: channel, ch: ch}
	if channel == "" {
		for _, u := range b.latest {
			offerUpdate(ch, u)
		}
	} else if u, ok := b.latest[channel]; ok {
		offerUpdate(ch, u)
	}
	b.mu.Unlock()
	return id, ch
}

// SubscribeEvents delivers safety events, newest-wins on overflow.
func (b *Bus) SubscribeEvents() (int, <-chan SafetyEvent) {
	ch := make(chan SafetyEvent, 8)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.events[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	if sub, ok := b.updates[id]; ok {
		delete(b.updates, id)
		close(sub.ch)
	}
	if ch, ok := b.events[id]; ok {
		delete(b.events, id)
		close(ch)
	}
	b.mu.Unlock()
}

// PublishUpdate fans one state update out. Offers are non-blocking, so
// holding the lock through delivery keeps Unsubscribe's close safe without
// ever stalling a producer.
func (b *Bus) PublishUpdate(u state.Update) {
	b.mu.Lock()
	b.latest[u.Channel] = u
	for _, s := range b.updates {
		if s.channel == "" || s.channel == u.Channel {
			offerUpdate(s.ch, u)
		}
	}
	b.mu.Unlock()
}

// PublishEvent appends to the log and fans the event out. Never blocks.
func (b *Bus) PublishEvent(ev SafetyEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	b.log = append(b.log, ev)
	b.pruneLocked(ev.Timestamp)
	for _, ch := range b.events {
		offerEvent(ch, ev)
	}
	b.mu.Unlock()
}

// Recent returns up to n most recent safety events, oldest first.
func (b *Bus) Recent(n int) []SafetyEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.log) {
		n = len(b.log)
	}
	out := make([]SafetyEvent, n)
	copy(out, b.log[len(b.log)-n:])
	return out
}

func (b *Bus) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.retention)
	i := 0
	for i < len(b.log) && b.log[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.log = append([]SafetyEvent(nil), b.log[i:]...)
	}
}

// offerUpdate replaces a pending value instead of blocking: the receiver
// only ever sees the most recent update.
func offerUpdate(ch chan state.Update, u state.Update) {
	select {
	case ch <- u:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- u:
	default:
	}
}

func offerEvent(ch chan SafetyEvent, ev SafetyEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
