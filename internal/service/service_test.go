package service

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmlink/internal/autopilot"
	"helmlink/internal/config"
	"helmlink/internal/state"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{}
	cfg.NMEA0183.Addr = "127.0.0.1:10110"
	cfg.NMEA2000.Addr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(testConfig(t), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return s
}

func TestNewWiresEverything(t *testing.T) {
	s := newTestService(t)
	assert.NotNil(t, s.Store)
	assert.NotNil(t, s.Bus)
	assert.NotNil(t, s.Manager)
	assert.NotNil(t, s.Pilot)

	health := s.HealthStatus()
	require.Len(t, health, 2)
	assert.Equal(t, "disconnected", health["nmea0183"].State)
	assert.Equal(t, "disconnected", health["nmea2000"].State)
}

func TestStoreUpdatesReachSubscribers(t *testing.T) {
	s := newTestService(t)
	id, ch := s.Subscribe(state.ChannelDepth)
	defer s.Unsubscribe(id)

	s.Store.Apply(state.Update{
		Channel:   state.ChannelDepth,
		Value:     7.2,
		Timestamp: time.Now(),
		Valid:     true,
	})

	select {
	case u := <-ch:
		assert.Equal(t, 7.2, u.Value)
	case <-time.After(time.Second):
		t.Fatal("subscriber missed the store update")
	}

	snap := s.Snapshot()
	assert.Equal(t, 7.2, snap[state.ChannelDepth].Value)
}

func TestPilotGatesWiredThroughFacade(t *testing.T) {
	s := newTestService(t)

	// engage with no heading data must fail on the staleness gate
	_, err := s.Pilot.Engage(0)
	assert.ErrorIs(t, err, autopilot.ErrHeadingStale)

	// issued commands are visible via CommandStatus
	cmd, err := s.Pilot.AdjustHeading(5)
	require.NoError(t, err)
	got, ok := s.CommandStatus(cmd.ID)
	require.True(t, ok)
	assert.Equal(t, autopilot.StatePending, got.State)
}
