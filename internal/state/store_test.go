package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAndSnapshot(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := s.Apply(Update{
		Channel:   ChannelDepth,
		Value:     12.9,
		Unit:      "m",
		Source:    ProtocolNMEA0183,
		Timestamp: now,
		Valid:     true,
	})
	require.True(t, ok)

	snap := s.Snapshot()
	e, found := snap[ChannelDepth]
	require.True(t, found)
	assert.Equal(t, 12.9, e.Value)
	assert.Equal(t, "m", e.Unit)
	assert.Equal(t, ProtocolNMEA0183, e.Source)
	assert.True(t, e.Valid)
	assert.False(t, e.Stale)
}

func TestApplyDropsOutOfOrder(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Apply(Update{Channel: ChannelHeading, Value: 180, Timestamp: now, Valid: true}))
	require.False(t, s.Apply(Update{Channel: ChannelHeading, Value: 90, Timestamp: now.Add(-time.Second), Valid: true}))

	e, _ := s.Get(ChannelHeading)
	assert.Equal(t, 180.0, e.Value)
	assert.Equal(t, uint64(1), s.OutOfOrderDrops())
}

func TestApplyEqualTimestampWins(t *testing.T) {
	// "not older" means equal timestamps still apply (last writer wins).
	s := NewStore(StoreConfig{})
	now := time.Now().UTC()
	require.True(t, s.Apply(Update{Channel: ChannelDepth, Value: 1, Timestamp: now, Valid: true}))
	require.True(t, s.Apply(Update{Channel: ChannelDepth, Value: 2, Timestamp: now, Valid: true}))
	e, _ := s.Get(ChannelDepth)
	assert.Equal(t, 2.0, e.Value)
}

func TestSweepStaleUsesCriticalInterval(t *testing.T) {
	s := NewStore(StoreConfig{StaleAfter: 5 * time.Second, CriticalStaleAfter: 2 * time.Second})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Apply(Update{Channel: ChannelHeading, Value: 100, Timestamp: base, Valid: true})
	s.Apply(Update{Channel: ChannelDepth, Value: 10, Timestamp: base, Valid: true})

	flagged := s.SweepStale(base.Add(3 * time.Second))
	require.Equal(t, []string{ChannelHeading}, flagged)

	flagged = s.SweepStale(base.Add(6 * time.Second))
	require.Equal(t, []string{ChannelDepth}, flagged)
	assert.Equal(t, 2, s.StaleCount())
}

func TestStaleEntryRetained(t *testing.T) {
	s := NewStore(StoreConfig{StaleAfter: time.Second, CriticalStaleAfter: time.Second})
	base := time.Now().UTC()
	s.Apply(Update{Channel: ChannelWindSpeed, Value: 14.2, Timestamp: base, Valid: true})
	s.SweepStale(base.Add(2 * time.Second))

	e, ok := s.Get(ChannelWindSpeed)
	require.True(t, ok, "stale data must be retained, not deleted")
	assert.True(t, e.Stale)
	assert.Equal(t, 14.2, e.Value)
}

func TestFreshUpdateClearsStale(t *testing.T) {
	s := NewStore(StoreConfig{StaleAfter: time.Second, CriticalStaleAfter: time.Second})
	base := time.Now().UTC()
	s.Apply(Update{Channel: ChannelDepth, Value: 5, Timestamp: base, Valid: true})
	s.SweepStale(base.Add(2 * time.Second))
	s.Apply(Update{Channel: ChannelDepth, Value: 6, Timestamp: base.Add(3 * time.Second), Valid: true})

	e, _ := s.Get(ChannelDepth)
	assert.False(t, e.Stale)
	assert.True(t, s.Fresh(ChannelDepth, base.Add(3*time.Second)))
}

func TestOnChangeHook(t *testing.T) {
	s := NewStore(StoreConfig{})
	var got []Update
	s.OnChange(func(u Update) { got = append(got, u) })

	now := time.Now().UTC()
	s.Apply(Update{Channel: ChannelDepth, Value: 3, Timestamp: now, Valid: true})
	s.Apply(Update{Channel: ChannelDepth, Value: 2, Timestamp: now.Add(-time.Minute), Valid: true})

	require.Len(t, got, 1, "dropped updates must not notify")
	assert.Equal(t, 3.0, got[0].Value)
}
