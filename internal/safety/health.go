package safety

import "time"

// HealthState is the per-transport connection state machine position.
type HealthState int

const (
	Disconnected HealthState = iota
	Connecting
	Connected
	Degraded
)

func (s HealthState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}

// degradeCause records what pushed a transport into Degraded, because the
// way back out differs: heartbeat staleness clears on the next frame, ack
// failures clear only on an accepted ack.
type degradeCause int

const (
	causeNone degradeCause = iota
	causeHeartbeat
	causeAcks
)

// transportHealth is the manager's per-transport bookkeeping. All fields are
// guarded by the manager's mutex except backoff and breaker, which are only
// touched by the transport's own run loop (backoff) or internally locked
// (breaker).
type transportHealth struct {
	state        HealthState
	degradedBy   degradeCause
	lastFrame    time.Time
	ackFails     int
	failSafeDone bool
	backoff      *Backoff
	breaker      *Breaker
}

// HealthSnapshot is the externally visible per-transport status.
type HealthSnapshot struct {
	State       string    `json:"state"`
	LastFrame   time.Time `json:"last_frame"`
	AckFailures int       `json:"ack_failures"`
	BreakerOpen bool      `json:"breaker_open"`
}
