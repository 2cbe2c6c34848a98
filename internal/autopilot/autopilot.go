// Package autopilot implements the outbound command protocol: building
// commands, gating them behind confirmation and rate limits, tracking each
// command's lifecycle from Pending through Sent to a terminal state, and
// correlating wire acknowledgments back to the issuing call.
package autopilot

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"helmlink/internal/metrics"
	"helmlink/internal/nmea2000"
	"helmlink/internal/state"
)

var (
	ErrConfirmationRequired = errors.New("autopilot: confirmation required")
	ErrHeadingStale         = errors.New("autopilot: heading unknown or stale")
	ErrRateLimited          = errors.New("autopilot: rate limited")
	ErrTimedOut             = errors.New("autopilot: command timed out")
	ErrRejected             = errors.New("autopilot: command rejected")
	ErrTransportGone        = errors.New("autopilot: transport gone")
)

type CommandState int

const (
	StatePending CommandState = iota
	StateSent
	StateAcknowledged
	StateTimedOut
	StateRejected
	StateFailed // transport torn down before resolution
)

func (s CommandState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSent:
		return "sent"
	case StateAcknowledged:
		return "acknowledged"
	case StateTimedOut:
		return "timed_out"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s CommandState) Terminal() bool {
	return s >= StateAcknowledged
}

// Priority orders the safety manager's command queue. Higher wins.
type Priority int

const (
	PriorityMode      Priority = 0 // engage, changeMode, standby
	PriorityAdjust    Priority = 1
	PriorityEmergency Priority = 2 // disengage
)

// Command is one autopilot command and its lifecycle. The wire-level SID is
// the low byte of the uuid id, adjusted to be unique among unresolved
// commands, and is echoed back in the pilot status PGN for correlation.
type Command struct {
	ID         string
	SID        uint8
	Kind       nmea2000.CommandKind
	Mode       nmea2000.PilotMode
	DeltaDeg   float64
	Priority   Priority
	State      CommandState
	CreatedAt  time.Time
	SentAt     time.Time
	ResolvedAt time.Time
	Err        error
}

// Wire returns the PGN-level encoding input for this command.
func (c *Command) Wire() nmea2000.PilotCommand {
	return nmea2000.PilotCommand{
		Kind:            c.Kind,
		Mode:            c.Mode,
		HeadingDeltaDeg: c.DeltaDeg,
		SID:             c.SID,
	}
}

// Sink accepts commands for dispatch. The safety manager implements it; its
// queue, not the controller, decides when a command reaches the wire.
type Sink interface {
	Enqueue(*Command) error
}

// Controller is the public command API. All methods are safe for concurrent
// use; lifecycle transitions are driven by the safety manager calling
// MarkSent, HandleAck, CheckTimeouts and FailTransport.
type Controller struct {
	store   *state.Store
	sink    Sink
	met     *metrics.Set
	limiter *rate.Limiter

	confirmWindow time.Duration
	ackTimeout    time.Duration
	retention     time.Duration

	mu          sync.Mutex
	confirmedAt time.Time
	commands    map[string]*Command // by id, including terminal until pruned
	unresolved  map[uint8]*Command  // by SID
	disengaging *Command            // in-flight emergency disengage, for idempotence

	now func() time.Time
}

type Options struct {
	ConfirmWindow time.Duration // default 5s
	AckTimeout    time.Duration // default 3s
	Retention     time.Duration // terminal commands kept this long, default 1m
	RatePerSec    float64       // non-emergency commands, default 1
}

func NewController(store *state.Store, sink Sink, met *metrics.Set, opts Options) *Controller {
	if opts.ConfirmWindow <= 0 {
		opts.ConfirmWindow = 5 * time.Second
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 3 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Minute
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}
	burst := 1
	if opts.RatePerSec > 1 {
		burst = int(opts.RatePerSec)
	}
	return &Controller{
		store:         store,
		sink:          sink,
		met:           met,
		limiter:       rate.NewLimiter(rate.Limit(opts.RatePerSec), burst),
		confirmWindow: opts.ConfirmWindow,
		ackTimeout:    opts.AckTimeout,
		retention:     opts.Retention,
		commands:      make(map[string]*Command),
		unresolved:    make(map[uint8]*Command),
		now:           time.Now,
	}
}

// Confirm arms the engage gate for the confirmation window.
func (c *Controller) Confirm() {
	c.mu.Lock()
	c.confirmedAt = c.now()
	c.mu.Unlock()
}

// Engage requests pilot engagement in the given mode. Requires a fresh
// heading and a Confirm call within the window; the confirmation is consumed
// so each Confirm authorizes exactly one engage.
func (c *Controller) Engage(mode nmea2000.PilotMode) (Command, error) {
	c.mu.Lock()
	now := c.now()
	if !c.store.Fresh(state.ChannelHeading, now) {
		c.mu.Unlock()
		return Command{}, ErrHeadingStale
	}
	if c.confirmedAt.IsZero() || now.Sub(c.confirmedAt) > c.confirmWindow {
		c.mu.Unlock()
		return Command{}, ErrConfirmationRequired
	}
	c.confirmedAt = time.Time{}
	c.mu.Unlock()
	return c.issue(nmea2000.CmdEngage, mode, 0, PriorityMode, false)
}

// Disengage is the emergency path: no confirmation, no rate limit. While a
// disengage is still unresolved, repeated calls return the same command
// rather than queuing a duplicate.
func (c *Controller) Disengage() (Command, error) {
	c.mu.Lock()
	if d := c.disengaging; d != nil && !d.State.Terminal() {
		out := *d
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()
	return c.issue(nmea2000.CmdDisengage, nmea2000.ModeStandby, 0, PriorityEmergency, true)
}

func (c *Controller) AdjustHeading(deltaDeg float64) (Command, error) {
	return c.issue(nmea2000.CmdAdjustHeading, 0, deltaDeg, PriorityAdjust, false)
}

func (c *Controller) ChangeMode(mode nmea2000.PilotMode) (Command, error) {
	return c.issue(nmea2000.CmdChangeMode, mode, 0, PriorityMode, false)
}

func (c *Controller) Standby() (Command, error) {
	return c.issue(nmea2000.CmdStandby, nmea2000.ModeStandby, 0, PriorityMode, false)
}

func (c *Controller) issue(kind nmea2000.CommandKind, mode nmea2000.PilotMode, delta float64, prio Priority, emergency bool) (Command, error) {
	if !emergency && !c.limiter.Allow() {
		if c.met != nil {
			c.met.QueueRejected.WithLabelValues("rate_limited").Inc()
		}
		return Command{}, ErrRateLimited
	}

	c.mu.Lock()
	cmd := &Command{
		ID:        uuid.NewString(),
		Kind:      kind,
		Mode:      mode,
		DeltaDeg:  delta,
		Priority:  prio,
		State:     StatePending,
		CreatedAt: c.now(),
	}
	cmd.SID = c.allocSID(cmd.ID)
	c.commands[cmd.ID] = cmd
	c.unresolved[cmd.SID] = cmd
	if emergency {
		c.disengaging = cmd
	}
	out := *cmd
	c.mu.Unlock()

	if err := c.sink.Enqueue(cmd); err != nil {
		c.mu.Lock()
		c.resolveLocked(cmd, StateFailed, err)
		out = *cmd
		c.mu.Unlock()
		return out, err
	}
	if c.met != nil {
		c.met.CommandsIssued.WithLabelValues(kind.String()).Inc()
	}
	return out, nil
}

// allocSID takes the uuid's low byte, probing upward on collision with an
// unresolved command. Caller holds mu.
func (c *Controller) allocSID(id string) uint8 {
	sid := uint8(0)
	if u, err := uuid.Parse(id); err == nil {
		sid = u[15]
	}
	for i := 0; i < 256; i++ {
		if _, taken := c.unresolved[sid]; !taken {
			return sid
		}
		sid++
	}
	return sid
}

// MarkSent records the wire write. Called by the safety manager when the
// command's frames actually leave the socket.
func (c *Controller) MarkSent(id string) {
	c.mu.Lock()
	if cmd, ok := c.commands[id]; ok && cmd.State == StatePending {
		cmd.State = StateSent
		cmd.SentAt = c.now()
	}
	c.mu.Unlock()
}

// HandleAck resolves the unresolved command matching sid. Returns the
// resolved command and whether a match existed.
func (c *Controller) HandleAck(sid uint8, accepted bool) (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, ok := c.unresolved[sid]
	if !ok {
		return Command{}, false
	}
	if accepted {
		c.resolveLocked(cmd, StateAcknowledged, nil)
	} else {
		c.resolveLocked(cmd, StateRejected, ErrRejected)
	}
	return *cmd, true
}

// CheckTimeouts times out sent-but-unacknowledged commands past the ack
// deadline and returns them. The safety manager runs this on a ticker and
// feeds the count into its consecutive-failure tracking.
func (c *Controller) CheckTimeouts(now time.Time) []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Command
	for _, cmd := range c.unresolved {
		if cmd.State == StateSent && now.Sub(cmd.SentAt) > c.ackTimeout {
			c.resolveLocked(cmd, StateTimedOut, ErrTimedOut)
			out = append(out, *cmd)
		}
	}
	return out
}

// ExpireQueued resolves a command that aged out of the queue before ever
// reaching the wire.
func (c *Controller) ExpireQueued(id string) {
	c.mu.Lock()
	if cmd, ok := c.commands[id]; ok && cmd.State == StatePending {
		c.resolveLocked(cmd, StateTimedOut, ErrTimedOut)
	}
	c.mu.Unlock()
}

// FailTransport resolves every unresolved command with TransportGone.
// Called when the NMEA2000 transport disconnects.
func (c *Controller) FailTransport() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.unresolved {
		c.resolveLocked(cmd, StateFailed, ErrTransportGone)
		n++
	}
	return n
}

// Prune drops terminal commands older than the retention window.
func (c *Controller) Prune(now time.Time) {
	c.mu.Lock()
	for id, cmd := range c.commands {
		if cmd.State.Terminal() && now.Sub(cmd.ResolvedAt) > c.retention {
			delete(c.commands, id)
		}
	}
	c.mu.Unlock()
}

// Status returns a copy of the command with the given id.
func (c *Controller) Status(id string) (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, ok := c.commands[id]
	if !ok {
		return Command{}, false
	}
	return *cmd, true
}

// caller holds mu
func (c *Controller) resolveLocked(cmd *Command, st CommandState, err error) {
	if cmd.State.Terminal() {
		return
	}
	cmd.State = st
	cmd.Err = err
	cmd.ResolvedAt = c.now()
	delete(c.unresolved, cmd.SID)
	if c.disengaging == cmd {
		c.disengaging = nil
	}
	if c.met != nil {
		c.met.CommandsResolved.WithLabelValues(st.String()).Inc()
	}
}
