// Package metrics exposes the core's operational counters on a prometheus
// registry. Every instrument lives on one Set so tests can use an isolated
// registry instead of the process-global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Set struct {
	Registry *prometheus.Registry

	FramesRead        *prometheus.CounterVec
	FramesSent        *prometheus.CounterVec
	SentencesParsed   prometheus.Counter
	SentencesSkipped  *prometheus.CounterVec
	PGNsDecoded       *prometheus.CounterVec
	PGNsUnknown       prometheus.Counter
	ReassemblyExpired prometheus.Counter
	OutOfOrderDrops   prometheus.Counter
	StaleChannels     prometheus.Gauge
	QueueDepth        prometheus.Gauge
	QueueRejected     *prometheus.CounterVec
	CommandsIssued    *prometheus.CounterVec
	CommandsResolved  *prometheus.CounterVec
	HealthState       *prometheus.GaugeVec
	SafetyEvents      *prometheus.CounterVec
	BreakerOpens      prometheus.Counter
	FailSafeDisengage prometheus.Counter
}

func New() *Set {
	reg := prometheus.NewRegistry()
	s := &Set{
		Registry: reg,
		FramesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_frames_read_total",
			Help: "Frames read from a transport.",
		}, []string{"transport"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_frames_sent_total",
			Help: "Frames written to a transport.",
		}, []string{"transport"}),
		SentencesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmlink_nmea0183_sentences_total",
			Help: "NMEA0183 sentences parsed into typed records.",
		}),
		SentencesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_nmea0183_skipped_total",
			Help: "NMEA0183 sentences skipped, by reason.",
		}, []string{"reason"}),
		PGNsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_nmea2000_decoded_total",
			Help: "NMEA2000 messages decoded, by PGN.",
		}, []string{"pgn"}),
		PGNsUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmlink_nmea2000_unknown_total",
			Help: "NMEA2000 frames with an unrecognized PGN.",
		}),
		ReassemblyExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmlink_nmea2000_reassembly_expired_total",
			Help: "Fast-packet sequences discarded before completion.",
		}),
		OutOfOrderDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmlink_state_out_of_order_total",
			Help: "State updates dropped because a newer value was stored.",
		}),
		StaleChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "helmlink_state_stale_channels",
			Help: "Channels currently flagged stale.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "helmlink_command_queue_depth",
			Help: "Commands waiting in the safety manager queue.",
		}),
		QueueRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_command_queue_rejected_total",
			Help: "Commands rejected by the queue, by reason.",
		}, []string{"reason"}),
		CommandsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_commands_issued_total",
			Help: "Autopilot commands accepted from callers, by kind.",
		}, []string{"kind"}),
		CommandsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_commands_resolved_total",
			Help: "Autopilot command terminal transitions, by outcome.",
		}, []string{"outcome"}),
		HealthState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "helmlink_transport_health_state",
			Help: "Connection health per transport (0=disconnected 1=connecting 2=connected 3=degraded).",
		}, []string{"transport"}),
		SafetyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmlink_safety_events_total",
			Help: "Safety events emitted, by kind.",
		}, []string{"kind"}),
		BreakerOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmlink_breaker_opens_total",
			Help: "Circuit breaker open transitions.",
		}),
		FailSafeDisengage: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmlink_failsafe_disengage_total",
			Help: "Implicit fail-safe disengage commands issued.",
		}),
	}

	reg.MustRegister(
		s.FramesRead, s.FramesSent,
		s.SentencesParsed, s.SentencesSkipped,
		s.PGNsDecoded, s.PGNsUnknown, s.ReassemblyExpired,
		s.OutOfOrderDrops, s.StaleChannels,
		s.QueueDepth, s.QueueRejected,
		s.CommandsIssued, s.CommandsResolved,
		s.HealthState, s.SafetyEvents,
		s.BreakerOpens, s.FailSafeDisengage,
	)
	return s
}
