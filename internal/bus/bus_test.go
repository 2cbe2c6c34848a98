package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmlink/internal/state"
)

func upd(channel string, v float64, ts time.Time) state.Update {
	return state.Update{Channel: channel, Value: v, Timestamp: ts}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	b := New(time.Hour)
	_, ch := b.Subscribe(state.ChannelDepth)

	now := time.Now()
	b.PublishUpdate(upd(state.ChannelDepth, 12.9, now))

	select {
	case u := <-ch:
		assert.Equal(t, 12.9, u.Value)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestChannelFilter(t *testing.T) {
	b := New(time.Hour)
	_, ch := b.Subscribe(state.ChannelHeading)

	b.PublishUpdate(upd(state.ChannelDepth, 5, time.Now()))

	select {
	case u := <-ch:
		t.Fatalf("unexpected update for %s", u.Channel)
	default:
	}

	b.PublishUpdate(upd(state.ChannelHeading, 87, time.Now()))
	select {
	case u := <-ch:
		assert.Equal(t, state.ChannelHeading, u.Channel)
	case <-time.After(time.Second):
		t.Fatal("filtered subscription missed its channel")
	}
}

func TestLatestValueWins(t *testing.T) {
	b := New(time.Hour)
	_, ch := b.Subscribe(state.ChannelDepth)

	now := time.Now()
	for i := 0; i < 10; i++ {
		b.PublishUpdate(upd(state.ChannelDepth, float64(i), now.Add(time.Duration(i)*time.Millisecond)))
	}

	// slow consumer reads once: must see the most recent value, not the first
	u := <-ch
	assert.Equal(t, 9.0, u.Value)
}

func TestNewSubscriberSeededWithLatest(t *testing.T) {
	b := New(time.Hour)
	b.PublishUpdate(upd(state.ChannelDepth, 7.5, time.Now()))

	_, ch := b.Subscribe(state.ChannelDepth)
	select {
	case u := <-ch:
		assert.Equal(t, 7.5, u.Value)
	case <-time.After(time.Second):
		t.Fatal("new subscriber not seeded")
	}
}

func TestWildcardSubscriber(t *testing.T) {
	b := New(time.Hour)
	_, ch := b.Subscribe("")

	b.PublishUpdate(upd(state.ChannelDepth, 3, time.Now()))
	select {
	case u := <-ch:
		assert.Equal(t, state.ChannelDepth, u.Channel)
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber got nothing")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(time.Hour)
	id, ch := b.Subscribe(state.ChannelDepth)
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	b.PublishUpdate(upd(state.ChannelDepth, 1, time.Now()))
}

func TestEventLogAndRecent(t *testing.T) {
	b := New(time.Hour)
	now := time.Now()
	for i := 0; i < 5; i++ {
		b.PublishEvent(SafetyEvent{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Severity:  SeverityInfo,
			Kind:      EventTransportUp,
		})
	}

	all := b.Recent(0)
	require.Len(t, all, 5)
	assert.True(t, all[0].Timestamp.Before(all[4].Timestamp))

	last2 := b.Recent(2)
	require.Len(t, last2, 2)
	assert.Equal(t, all[3].Timestamp, last2[0].Timestamp)
}

func TestEventRetentionPrunes(t *testing.T) {
	b := New(time.Minute)
	now := time.Now()
	b.PublishEvent(SafetyEvent{Timestamp: now.Add(-2 * time.Minute), Kind: EventTransportDown})
	b.PublishEvent(SafetyEvent{Timestamp: now, Kind: EventTransportUp})

	evs := b.Recent(0)
	require.Len(t, evs, 1)
	assert.Equal(t, EventTransportUp, evs[0].Kind)
}

func TestEventFanout(t *testing.T) {
	b := New(time.Hour)
	_, ch := b.SubscribeEvents()

	b.PublishEvent(SafetyEvent{Kind: EventFailSafeDisengage, Severity: SeverityCritical})
	select {
	case ev := <-ch:
		assert.Equal(t, EventFailSafeDisengage, ev.Kind)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
