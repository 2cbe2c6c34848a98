package state

import (
	"strings"
	"sync"
	"time"
)

type StoreConfig struct {
	// StaleAfter flags a channel stale when no update arrives within it.
	StaleAfter time.Duration
	// CriticalStaleAfter applies to channels the autopilot gate depends on.
	CriticalStaleAfter time.Duration
}

// Store owns the VesselState map. Writers are the two parser paths; readers
// take point-in-time copies. Per-channel upserts never block each other for
// longer than the map lock.
type Store struct {
	mu  sync.RWMutex
	cfg StoreConfig

	entries  map[string]Entry
	ooDrops  uint64
	onChange func(Update)
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Second
	}
	if cfg.CriticalStaleAfter <= 0 {
		cfg.CriticalStaleAfter = 2 * time.Second
	}
	return &Store{
		cfg:     cfg,
		entries: make(map[string]Entry),
	}
}

// OnChange registers a single notification hook invoked after each accepted
// upsert. Set once during wiring, before the read loops start.
func (s *Store) OnChange(fn func(Update)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Apply upserts one channel. Updates older than the stored timestamp are
// dropped silently and counted; UDP reorders them routinely.
func (s *Store) Apply(u Update) bool {
	if s == nil || u.Channel == "" {
		return false
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	prev, exists := s.entries[u.Channel]
	if exists && u.Timestamp.Before(prev.LastUpdated) {
		s.ooDrops++
		s.mu.Unlock()
		return false
	}
	s.entries[u.Channel] = Entry{
		Value:       u.Value,
		Unit:        u.Unit,
		Source:      u.Source,
		LastUpdated: u.Timestamp,
		Valid:       u.Valid,
		Stale:       false,
	}
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(u)
	}
	return true
}

// Snapshot returns a copy of the full vessel state.
func (s *Store) Snapshot() map[string]Entry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Get returns one channel entry.
func (s *Store) Get(channel string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[channel]
	return e, ok
}

// Fresh reports whether a channel holds a valid, non-stale value as of now.
func (s *Store) Fresh(channel string, now time.Time) bool {
	e, ok := s.Get(channel)
	if !ok || !e.Valid {
		return false
	}
	return now.Sub(e.LastUpdated) <= s.staleAfter(channel)
}

// SweepStale flags channels whose expected interval has lapsed and returns
// the channels that changed to stale on this pass.
func (s *Store) SweepStale(now time.Time) []string {
	if s == nil {
		return nil
	}
	var flagged []string
	s.mu.Lock()
	for ch, e := range s.entries {
		if e.Stale {
			continue
		}
		if now.Sub(e.LastUpdated) > s.staleAfter(ch) {
			e.Stale = true
			s.entries[ch] = e
			flagged = append(flagged, ch)
		}
	}
	s.mu.Unlock()
	return flagged
}

// StaleCount returns how many channels are currently flagged stale.
func (s *Store) StaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Stale {
			n++
		}
	}
	return n
}

// OutOfOrderDrops returns the count of updates dropped for arriving late.
func (s *Store) OutOfOrderDrops() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ooDrops
}

// Critical channels feed the autopilot engage gate and the fail-safe
// heartbeat check, so they go stale on the shorter interval.
func (s *Store) staleAfter(channel string) time.Duration {
	if channel == ChannelHeading || channel == ChannelRudderAngle ||
		strings.HasPrefix(channel, "autopilot.") {
		return s.cfg.CriticalStaleAfter
	}
	return s.cfg.StaleAfter
}
