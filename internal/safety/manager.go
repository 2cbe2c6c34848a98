// Package safety owns connection health, retry, circuit breaking, the
// command queue, and the fail-safe disengage policy. Every health transition
// and queue decision happens under one lock so "connection just degraded"
// and "command just enqueued" cannot race.
package safety

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"helmlink/internal/autopilot"
	"helmlink/internal/bus"
	"helmlink/internal/config"
	"helmlink/internal/metrics"
	"helmlink/internal/nmea0183"
	"helmlink/internal/nmea2000"
	"helmlink/internal/state"
	"helmlink/internal/transport"
)

// NMEA2000 bus addresses for outbound command frames.
const (
	sourceAddress = 0x05
	pilotAddress  = 0xCC
)

// Manager runs both transport loops and gates everything that touches the
// wire. It implements autopilot.Sink: commands reach the wire only through
// its queue and only while the NMEA2000 transport is healthy and resynced.
type Manager struct {
	cfg   config.SafetyConfig
	met   *metrics.Set
	bus   *bus.Bus
	store *state.Store
	logf  *log.Logger

	tcp    transport.DataSource
	udp    transport.DataSource
	parser *nmea0183.Parser
	codec  *nmea2000.Codec

	queue *CommandQueue
	wake  chan struct{}

	ooSeen uint64 // out-of-order drops already exported; runTicker only

	mu        sync.Mutex
	ctrl      *autopilot.Controller
	health    map[string]*transportHealth
	resyncing bool
	seq       uint8
}

func NewManager(cfg config.SafetyConfig, tcp, udp transport.DataSource, parser *nmea0183.Parser, codec *nmea2000.Codec, store *state.Store, b *bus.Bus, met *metrics.Set, logger *log.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		met:    met,
		bus:    b,
		store:  store,
		logf:   logger,
		tcp:    tcp,
		udp:    udp,
		parser: parser,
		codec:  codec,
		queue:  NewCommandQueue(cfg.QueueSize, cfg.QueueEntryTTL.Std()),
		wake:   make(chan struct{}, 1),
		health: make(map[string]*transportHealth),
	}
	for _, src := range []transport.DataSource{tcp, udp} {
		m.health[src.Name()] = &transportHealth{
			state:   Disconnected,
			backoff: NewBackoff(cfg.BackoffInitial.Std(), cfg.BackoffMax.Std()),
			breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown.Std()),
		}
	}
	return m
}

// SetController closes the wiring loop: the controller is constructed with
// the manager as its sink, then handed back here before Run.
func (m *Manager) SetController(c *autopilot.Controller) {
	m.mu.Lock()
	m.ctrl = c
	m.mu.Unlock()
}

// Enqueue implements autopilot.Sink.
func (m *Manager) Enqueue(cmd *autopilot.Command) error {
	if err := m.queue.Push(cmd, time.Now()); err != nil {
		m.met.QueueRejected.WithLabelValues("queue_full").Inc()
		return err
	}
	m.met.QueueDepth.Set(float64(m.queue.Len()))
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run blocks until ctx is cancelled, driving both transports, the command
// pump and the periodic safety checks.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.runTransport(ctx, m.tcp, m.handleSentence) })
	g.Go(func() error { return m.runTransport(ctx, m.udp, m.handleDatagram) })
	g.Go(func() error { return m.runPump(ctx) })
	g.Go(func() error { return m.runTicker(ctx) })
	return g.Wait()
}

func (m *Manager) runTransport(ctx context.Context, src transport.DataSource, handle func([]byte, time.Time)) error {
	name := src.Name()
	h := m.healthOf(name)
	defer src.Disconnect()

	for ctx.Err() == nil {
		if !h.breaker.Allow(time.Now()) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		m.setState(name, Connecting)
		if err := src.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logf.Printf("%s: connect: %v", name, err)
			if h.breaker.Failure(time.Now()) {
				m.met.BreakerOpens.Inc()
				m.event(bus.SeverityWarning, bus.EventBreakerOpen, map[string]string{"transport": name})
			}
			m.setState(name, Disconnected)
			if err := h.backoff.Sleep(ctx); err != nil {
				return err
			}
			continue
		}
		h.breaker.Success()
		h.backoff.Reset()
		m.onConnected(name)

		for {
			fr, err := src.NextFrame(ctx)
			if err != nil {
				if errors.Is(err, transport.ErrTimeout) {
					continue // staleness is the ticker's call
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logf.Printf("%s: read: %v", name, err)
				break
			}
			m.met.FramesRead.WithLabelValues(name).Inc()
			m.touch(name, fr.ReceivedAt)
			handle(fr.Payload, fr.ReceivedAt)
		}

		src.Disconnect()
		m.onDisconnected(name)
		if err := h.backoff.Sleep(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (m *Manager) handleSentence(line []byte, ts time.Time) {
	msg := m.parser.Parse(line)
	for _, u := range msg.Updates(ts) {
		m.store.Apply(u)
	}
}

func (m *Manager) handleDatagram(b []byte, ts time.Time) {
	msg, err := m.codec.ProcessDatagram(b, ts)
	if err != nil {
		m.logf.Printf("nmea2000: %v", err)
		return
	}
	if msg == nil {
		return // fast-packet still assembling
	}

	switch v := msg.(type) {
	case nmea2000.PilotStatus:
		if v.Acked || v.Rejected {
			m.resolveAck(v.SID, v.Acked && !v.Rejected)
		}
	case nmea2000.PilotAlarm:
		sev := bus.SeverityInfo
		if v.Raised {
			sev = bus.SeverityWarning
		}
		m.event(sev, bus.EventPilotAlarm, map[string]string{
			"alarm":  strconv.Itoa(int(v.AlarmID)),
			"group":  strconv.Itoa(int(v.Group)),
			"raised": strconv.FormatBool(v.Raised),
		})
	}

	for _, u := range msg.Updates(ts) {
		m.store.Apply(u)
	}
	m.maybeFinishResync(ts)
}

func (m *Manager) resolveAck(sid uint8, accepted bool) {
	m.mu.Lock()
	ctrl := m.ctrl
	m.mu.Unlock()
	if ctrl == nil {
		return
	}
	cmd, ok := ctrl.HandleAck(sid, accepted)
	if !ok {
		return
	}
	name := m.udp.Name()
	m.mu.Lock()
	h := m.health[name]
	if accepted {
		h.ackFails = 0
		if h.state == Degraded {
			// the ack rode in on a frame, so the heartbeat is fresh too
			m.transitionLocked(name, h, Connected, bus.EventTransportRecovered)
		}
	} else {
		h.ackFails++
		m.logf.Printf("autopilot: command %s rejected", cmd.ID)
		if h.ackFails > m.cfg.AckFailureLimit && h.state == Connected {
			h.degradedBy = causeAcks
			m.transitionLocked(name, h, Degraded, bus.EventTransportDegraded)
			m.failSafeLocked(name, h)
		}
	}
	m.mu.Unlock()
}

// runPump drains the command queue onto the wire whenever the NMEA2000
// transport is connected and resynced.
func (m *Manager) runPump(ctx context.Context) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
		case <-tick.C:
		}
		m.drainQueue(ctx)
	}
}

func (m *Manager) drainQueue(ctx context.Context) {
	name := m.udp.Name()
	for {
		m.mu.Lock()
		ready := m.health[name].state == Connected && !m.resyncing
		ctrl := m.ctrl
		m.mu.Unlock()
		if !ready || ctrl == nil {
			return
		}

		now := time.Now()
		cmd, enqueuedAt, expired := m.queue.Pop(now)
		for _, ex := range expired {
			ctrl.ExpireQueued(ex.ID)
			m.met.QueueRejected.WithLabelValues("expired").Inc()
			m.event(bus.SeverityWarning, bus.EventCommandExpired, map[string]string{"command": ex.ID})
		}
		m.met.QueueDepth.Set(float64(m.queue.Len()))
		if cmd == nil {
			return
		}
		if st, ok := ctrl.Status(cmd.ID); !ok || st.State.Terminal() {
			continue // resolved while queued
		}
		if err := m.send(ctx, cmd); err != nil {
			m.logf.Printf("autopilot: send %s: %v", cmd.ID, err)
			// the read loop will notice a dead transport; requeue with the
			// original enqueue time so the TTL keeps counting
			if qErr := m.queue.Push(cmd, enqueuedAt); qErr != nil {
				ctrl.ExpireQueued(cmd.ID)
			}
			return
		}
		ctrl.MarkSent(cmd.ID)
	}
}

func (m *Manager) send(ctx context.Context, cmd *autopilot.Command) error {
	m.mu.Lock()
	seq := m.seq
	m.seq = (m.seq + 1) & 0x7
	m.mu.Unlock()

	frames, err := nmea2000.CommandFrames(cmd.Wire(), seq, sourceAddress, pilotAddress)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := m.udp.Send(ctx, f); err != nil {
			return err
		}
		m.met.FramesSent.WithLabelValues(m.udp.Name()).Inc()
	}
	return nil
}

// runTicker drives heartbeat staleness checks, ack timeouts, reassembly and
// staleness sweeps, and terminal-command pruning.
func (m *Manager) runTicker(ctx context.Context) error {
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			m.sweep(now)
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.checkHeartbeats(now)
	m.checkAckTimeouts(now)
	m.codec.SweepReassembly(now)
	m.store.SweepStale(now)
	m.met.StaleChannels.Set(float64(m.store.StaleCount()))
	if drops := m.store.OutOfOrderDrops(); drops > m.ooSeen {
		m.met.OutOfOrderDrops.Add(float64(drops - m.ooSeen))
		m.ooSeen = drops
	}
	m.mu.Lock()
	ctrl := m.ctrl
	m.mu.Unlock()
	if ctrl != nil {
		ctrl.Prune(now)
	}
}

func (m *Manager) checkHeartbeats(now time.Time) {
	threshold := time.Duration(m.cfg.HeartbeatMultiplier) * m.cfg.HeartbeatInterval.Std()
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, h := range m.health {
		if h.state != Connected || h.lastFrame.IsZero() {
			continue
		}
		if now.Sub(h.lastFrame) > threshold {
			m.event(bus.SeverityWarning, bus.EventHeartbeatStale, map[string]string{"transport": name})
			h.degradedBy = causeHeartbeat
			m.transitionLocked(name, h, Degraded, bus.EventTransportDegraded)
			m.failSafeLocked(name, h)
		}
	}
}

func (m *Manager) checkAckTimeouts(now time.Time) {
	m.mu.Lock()
	ctrl := m.ctrl
	m.mu.Unlock()
	if ctrl == nil {
		return
	}
	timed := ctrl.CheckTimeouts(now)
	if len(timed) == 0 {
		return
	}
	name := m.udp.Name()
	m.mu.Lock()
	h := m.health[name]
	h.ackFails += len(timed)
	if h.ackFails > m.cfg.AckFailureLimit && h.state == Connected {
		h.degradedBy = causeAcks
		m.transitionLocked(name, h, Degraded, bus.EventTransportDegraded)
		m.failSafeLocked(name, h)
	}
	m.mu.Unlock()
}

func (m *Manager) onConnected(name string) {
	m.mu.Lock()
	h := m.health[name]
	m.transitionLocked(name, h, Connected, bus.EventTransportUp)
	h.ackFails = 0
	h.failSafeDone = false
	if name == m.udp.Name() {
		// hold commands until fresh telemetry arrives post-reconnect
		m.resyncing = true
	}
	m.mu.Unlock()
}

func (m *Manager) onDisconnected(name string) {
	m.mu.Lock()
	h := m.health[name]
	m.transitionLocked(name, h, Disconnected, bus.EventTransportDown)
	m.failSafeLocked(name, h)
	ctrl := m.ctrl
	m.mu.Unlock()

	if name == m.udp.Name() && ctrl != nil {
		if n := ctrl.FailTransport(); n > 0 {
			m.logf.Printf("autopilot: %d pending commands failed, transport gone", n)
		}
	}
}

// touch records frame arrival. A fresh frame clears heartbeat-caused
// degradation; ack-caused degradation waits for an accepted ack.
func (m *Manager) touch(name string, ts time.Time) {
	m.mu.Lock()
	h := m.health[name]
	h.lastFrame = ts
	if h.state == Degraded && h.degradedBy == causeHeartbeat {
		m.transitionLocked(name, h, Connected, bus.EventTransportRecovered)
	}
	m.mu.Unlock()
}

// maybeFinishResync re-enables command issuance once a heading update with a
// post-reconnect timestamp has landed in the store.
func (m *Manager) maybeFinishResync(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.resyncing {
		return
	}
	if m.store.Fresh(state.ChannelHeading, now) {
		m.resyncing = false
		m.event(bus.SeverityInfo, bus.EventResyncComplete, nil)
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// failSafeLocked issues the implicit disengage, at most once per incident.
// Caller holds mu.
func (m *Manager) failSafeLocked(name string, h *transportHealth) {
	if h.failSafeDone || m.ctrl == nil {
		return
	}
	h.failSafeDone = true
	e, ok := m.store.Get(state.ChannelPilotEngaged)
	if !ok || !e.Valid || e.Value != 1 {
		return
	}
	ctrl := m.ctrl
	// issue outside the lock: Disengage re-enters Enqueue
	go func() {
		if _, err := ctrl.Disengage(); err != nil {
			m.logf.Printf("failsafe: disengage: %v", err)
		}
	}()
	m.met.FailSafeDisengage.Inc()
	m.event(bus.SeverityCritical, bus.EventFailSafeDisengage, map[string]string{"transport": name})
}

// transitionLocked moves one transport's state machine and emits the
// matching event and gauge. Caller holds mu.
func (m *Manager) transitionLocked(name string, h *transportHealth, to HealthState, kind string) {
	if h.state == to {
		return
	}
	from := h.state
	h.state = to
	m.met.HealthState.WithLabelValues(name).Set(float64(to))
	if to == Connected {
		h.failSafeDone = false
		h.degradedBy = causeNone
	}
	sev := bus.SeverityInfo
	if to == Degraded || to == Disconnected {
		sev = bus.SeverityWarning
	}
	m.event(sev, kind, map[string]string{
		"transport": name, "from": from.String(), "to": to.String(),
	})
}

func (m *Manager) setState(name string, to HealthState) {
	m.mu.Lock()
	h := m.health[name]
	if h.state != to {
		h.state = to
		m.met.HealthState.WithLabelValues(name).Set(float64(to))
	}
	m.mu.Unlock()
}

func (m *Manager) event(sev bus.Severity, kind string, ctxMap map[string]string) {
	m.met.SafetyEvents.WithLabelValues(kind).Inc()
	m.bus.PublishEvent(bus.SafetyEvent{
		Timestamp: time.Now().UTC(),
		Severity:  sev,
		Kind:      kind,
		Context:   ctxMap,
	})
}

// Health returns the externally visible per-transport status.
func (m *Manager) Health() map[string]HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]HealthSnapshot, len(m.health))
	for name, h := range m.health {
		out[name] = HealthSnapshot{
			State:       h.state.String(),
			LastFrame:   h.lastFrame,
			AckFailures: h.ackFails,
			BreakerOpen: h.breaker.Open(),
		}
	}
	return out
}

// QueueDepth reports how many commands are staged for the wire.
func (m *Manager) QueueDepth() int {
	return m.queue.Len()
}

func (m *Manager) healthOf(name string) *transportHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health[name]
}
