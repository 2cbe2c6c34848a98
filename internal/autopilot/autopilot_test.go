package autopilot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmlink/internal/nmea2000"
	"helmlink/internal/state"
)

// sinkFunc collects enqueued commands, optionally failing.
type sinkFunc struct {
	cmds []*Command
	err  error
}

func (s *sinkFunc) Enqueue(c *Command) error {
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, c)
	return nil
}

func newTestController(t *testing.T) (*Controller, *sinkFunc, *state.Store, *time.Time) {
	t.Helper()
	store := state.NewStore(state.StoreConfig{})
	sink := &sinkFunc{}
	c := NewController(store, sink, nil, Options{RatePerSec: 1000})
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, sink, store, &now
}

func freshHeading(store *state.Store, ts time.Time) {
	store.Apply(state.Update{
		Channel:   state.ChannelHeading,
		Value:     123.0,
		Timestamp: ts,
		Valid:     true,
	})
}

func TestEngageRequiresConfirmation(t *testing.T) {
	c, sink, store, now := newTestController(t)
	freshHeading(store, *now)

	_, err := c.Engage(nmea2000.ModeCompass)
	require.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Empty(t, sink.cmds)

	c.Confirm()
	cmd, err := c.Engage(nmea2000.ModeCompass)
	require.NoError(t, err)
	assert.Equal(t, nmea2000.CmdEngage, cmd.Kind)
	assert.Equal(t, StatePending, cmd.State)
	require.Len(t, sink.cmds, 1)
}

func TestConfirmationConsumedAndExpires(t *testing.T) {
	c, _, store, now := newTestController(t)
	freshHeading(store, *now)

	c.Confirm()
	_, err := c.Engage(nmea2000.ModeCompass)
	require.NoError(t, err)

	// the confirmation authorized exactly one engage
	_, err = c.Engage(nmea2000.ModeCompass)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	// a confirmation older than the window no longer counts
	c.Confirm()
	*now = now.Add(6 * time.Second)
	freshHeading(store, *now)
	_, err = c.Engage(nmea2000.ModeCompass)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
}

func TestEngageRequiresFreshHeading(t *testing.T) {
	c, _, _, _ := newTestController(t)
	c.Confirm()
	_, err := c.Engage(nmea2000.ModeCompass)
	assert.ErrorIs(t, err, ErrHeadingStale)
}

func TestRateLimitOneAcceptedRestRejected(t *testing.T) {
	store := state.NewStore(state.StoreConfig{})
	sink := &sinkFunc{}
	c := NewController(store, sink, nil, Options{RatePerSec: 1})

	accepted, limited := 0, 0
	for i := 0; i < 10; i++ {
		_, err := c.AdjustHeading(5)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrRateLimited):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 9, limited)
}

func TestDisengageBypassesGatesAndIsIdempotent(t *testing.T) {
	c, sink, _, _ := newTestController(t)

	// no confirmation, no fresh heading required
	first, err := c.Disengage()
	require.NoError(t, err)
	assert.Equal(t, nmea2000.CmdDisengage, first.Kind)
	assert.Equal(t, PriorityEmergency, first.Priority)

	// second call while the first is unresolved returns the same command
	second, err := c.Disengage()
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, sink.cmds, 1)

	// once resolved, a new disengage is a new command
	c.HandleAck(first.SID, true)
	third, err := c.Disengage()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	require.Len(t, sink.cmds, 2)
}

func TestAckLifecycle(t *testing.T) {
	c, sink, _, _ := newTestController(t)

	cmd, err := c.AdjustHeading(10)
	require.NoError(t, err)

	c.MarkSent(cmd.ID)
	got, ok := c.Status(cmd.ID)
	require.True(t, ok)
	assert.Equal(t, StateSent, got.State)

	resolved, ok := c.HandleAck(sink.cmds[0].SID, true)
	require.True(t, ok)
	assert.Equal(t, cmd.ID, resolved.ID)
	assert.Equal(t, StateAcknowledged, resolved.State)

	// duplicate ack finds nothing
	_, ok = c.HandleAck(sink.cmds[0].SID, true)
	assert.False(t, ok)
}

func TestRejectedAck(t *testing.T) {
	c, _, _, _ := newTestController(t)

	cmd, err := c.Standby()
	require.NoError(t, err)
	c.MarkSent(cmd.ID)

	resolved, ok := c.HandleAck(cmd.SID, false)
	require.True(t, ok)
	assert.Equal(t, StateRejected, resolved.State)
	assert.ErrorIs(t, resolved.Err, ErrRejected)
}

func TestAckTimeout(t *testing.T) {
	c, _, _, now := newTestController(t)

	cmd, err := c.ChangeMode(nmea2000.ModeWind)
	require.NoError(t, err)
	c.MarkSent(cmd.ID)

	// not yet past the deadline
	assert.Empty(t, c.CheckTimeouts(now.Add(2*time.Second)))

	timed := c.CheckTimeouts(now.Add(4 * time.Second))
	require.Len(t, timed, 1)
	assert.Equal(t, StateTimedOut, timed[0].State)
	assert.ErrorIs(t, timed[0].Err, ErrTimedOut)

	// an ack arriving after the timeout is ignored
	_, ok := c.HandleAck(cmd.SID, true)
	assert.False(t, ok)
}

func TestPendingCommandsNeverTimeOut(t *testing.T) {
	c, _, _, now := newTestController(t)

	_, err := c.AdjustHeading(-5)
	require.NoError(t, err)

	// still queued, never sent: the ack clock has not started
	assert.Empty(t, c.CheckTimeouts(now.Add(time.Minute)))
}

func TestFailTransport(t *testing.T) {
	c, _, _, _ := newTestController(t)

	a, err := c.AdjustHeading(3)
	require.NoError(t, err)
	b, err := c.Standby()
	require.NoError(t, err)
	c.MarkSent(a.ID)

	assert.Equal(t, 2, c.FailTransport())
	for _, id := range []string{a.ID, b.ID} {
		got, ok := c.Status(id)
		require.True(t, ok)
		assert.Equal(t, StateFailed, got.State)
		assert.ErrorIs(t, got.Err, ErrTransportGone)
	}
}

func TestEnqueueFailureFailsCommand(t *testing.T) {
	store := state.NewStore(state.StoreConfig{})
	sink := &sinkFunc{err: errors.New("queue full")}
	c := NewController(store, sink, nil, Options{RatePerSec: 1000})

	cmd, err := c.AdjustHeading(2)
	require.Error(t, err)
	assert.Equal(t, StateFailed, cmd.State)
}

func TestPruneDropsTerminalAfterRetention(t *testing.T) {
	c, _, _, now := newTestController(t)

	cmd, err := c.Standby()
	require.NoError(t, err)
	c.HandleAck(cmd.SID, true)

	c.Prune(now.Add(30 * time.Second))
	_, ok := c.Status(cmd.ID)
	assert.True(t, ok)

	c.Prune(now.Add(2 * time.Minute))
	_, ok = c.Status(cmd.ID)
	assert.False(t, ok)
}

func TestSIDCollisionResolution(t *testing.T) {
	c, sink, _, _ := newTestController(t)

	for i := 0; i < 5; i++ {
		_, err := c.AdjustHeading(float64(i))
		require.NoError(t, err)
	}
	seen := map[uint8]bool{}
	for _, cmd := range sink.cmds {
		assert.False(t, seen[cmd.SID], "duplicate SID %d among unresolved commands", cmd.SID)
		seen[cmd.SID] = true
	}
}
