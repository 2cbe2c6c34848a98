// Package service assembles the telemetry core: transports, parsers, the
// state store, the event bus, the autopilot controller and the safety
// manager, behind one facade for in-process consumers.
package service

import (
	"context"
	"log"

	"helmlink/internal/autopilot"
	"helmlink/internal/bus"
	"helmlink/internal/config"
	"helmlink/internal/metrics"
	"helmlink/internal/nmea0183"
	"helmlink/internal/nmea2000"
	"helmlink/internal/safety"
	"helmlink/internal/state"
	"helmlink/internal/transport"
)

type Service struct {
	cfg     config.Config
	Metrics *metrics.Set
	Store   *state.Store
	Bus     *bus.Bus
	Manager *safety.Manager
	Pilot   *autopilot.Controller
}

func New(cfg config.Config, logger *log.Logger) (*Service, error) {
	met := metrics.New()
	store := state.NewStore(state.StoreConfig{
		StaleAfter:         cfg.State.StaleAfter.Std(),
		CriticalStaleAfter: cfg.State.CriticalStaleAfter.Std(),
	})
	b := bus.New(cfg.Safety.EventRetention.Std())
	store.OnChange(b.PublishUpdate)

	tcp, err := transport.NewTCPSource(transport.Config{
		Name:           "nmea0183",
		Addr:           cfg.NMEA0183.Addr,
		ConnectTimeout: cfg.NMEA0183.ConnectTimeout.Std(),
		ReadTimeout:    cfg.NMEA0183.ReadTimeout.Std(),
		MaxFrameBytes:  cfg.NMEA0183.MaxFrameBytes,
	})
	if err != nil {
		return nil, err
	}
	udp, err := transport.NewUDPSource(transport.Config{
		Name:           "nmea2000",
		Addr:           cfg.NMEA2000.Addr,
		ConnectTimeout: cfg.NMEA2000.ConnectTimeout.Std(),
		ReadTimeout:    cfg.NMEA2000.ReadTimeout.Std(),
		MaxFrameBytes:  cfg.NMEA2000.MaxFrameBytes,
	})
	if err != nil {
		return nil, err
	}

	mgr := safety.NewManager(cfg.Safety, tcp, udp,
		nmea0183.NewParser(met),
		nmea2000.NewCodec(cfg.Safety.ReassemblyTimeout.Std(), met),
		store, b, met, logger)

	pilot := autopilot.NewController(store, mgr, met, autopilot.Options{
		ConfirmWindow: cfg.Autopilot.ConfirmWindow.Std(),
		AckTimeout:    cfg.Autopilot.AckTimeout.Std(),
		Retention:     cfg.Autopilot.RetainTerminal.Std(),
		RatePerSec:    cfg.Autopilot.CommandRate,
	})
	mgr.SetController(pilot)

	return &Service{
		cfg:     cfg,
		Metrics: met,
		Store:   store,
		Bus:     b,
		Manager: mgr,
		Pilot:   pilot,
	}, nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.Manager.Run(ctx)
}

// Snapshot is a point-in-time copy of the vessel state.
func (s *Service) Snapshot() map[string]state.Entry {
	return s.Store.Snapshot()
}

// Subscribe streams updates for one channel, or all channels when empty.
func (s *Service) Subscribe(channel string) (int, <-chan state.Update) {
	return s.Bus.Subscribe(channel)
}

// SubscribeEvents streams safety events.
func (s *Service) SubscribeEvents() (int, <-chan bus.SafetyEvent) {
	return s.Bus.SubscribeEvents()
}

func (s *Service) Unsubscribe(id int) {
	s.Bus.Unsubscribe(id)
}

// CommandStatus reports the lifecycle state of a previously issued command.
func (s *Service) CommandStatus(id string) (autopilot.Command, bool) {
	return s.Pilot.Status(id)
}

// HealthStatus reports per-transport connection health.
func (s *Service) HealthStatus() map[string]safety.HealthSnapshot {
	return s.Manager.Health()
}
