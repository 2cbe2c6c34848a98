// Package export is the optional MQTT bridge: it mirrors state-channel
// updates and safety events to an external broker for dashboards. Nothing in
// the core depends on it; a lost broker never backpressures ingestion.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"helmlink/internal/bus"
	"helmlink/internal/config"
	"helmlink/internal/state"
)

// publisher is the slice of the paho client the bridge uses, extracted so
// tests can run without a broker.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

type updatePayload struct {
	Channel   string         `json:"channel"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit,omitempty"`
	Source    state.Protocol `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Valid     bool           `json:"valid"`
}

// Bridge consumes the event bus and republishes onto MQTT topics:
// updates on <state_topic>/<channel>, safety events on <event_topic>.
type Bridge struct {
	cfg    config.ExportConfig
	bus    *bus.Bus
	client publisher
	logger *log.Logger
}

func NewBridge(cfg config.ExportConfig, b *bus.Bus, logger *log.Logger) *Bridge {
	return &Bridge{cfg: cfg, bus: b, logger: logger}
}

// Connect dials the broker. Paho handles reconnects after the first
// successful connect.
func (br *Bridge) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(br.cfg.Broker).
		SetClientID(br.cfg.ClientID).
		SetConnectTimeout(br.cfg.ConnectTimeout.Std()).
		SetAutoReconnect(true)
	if br.cfg.Username != "" {
		opts.SetUsername(br.cfg.Username)
		opts.SetPassword(br.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("export: connect %s: %w", br.cfg.Broker, token.Error())
	}
	br.client = client
	br.logger.Printf("export: connected to %s", br.cfg.Broker)
	return nil
}

// Run forwards bus traffic to the broker until ctx is cancelled.
func (br *Bridge) Run(ctx context.Context) error {
	updID, updates := br.bus.Subscribe("")
	evID, events := br.bus.SubscribeEvents()
	defer br.bus.Unsubscribe(updID)
	defer br.bus.Unsubscribe(evID)

	for {
		select {
		case <-ctx.Done():
			if br.client != nil {
				br.client.Disconnect(1000)
			}
			return ctx.Err()
		case u := <-updates:
			br.publishUpdate(u)
		case ev := <-events:
			br.publishEvent(ev)
		}
	}
}

func (br *Bridge) publishUpdate(u state.Update) {
	if br.client == nil || !br.client.IsConnected() {
		return // drop quietly, latest-value-wins catches us up on reconnect
	}
	payload, err := json.Marshal(updatePayload{
		Channel:   u.Channel,
		Value:     u.Value,
		Unit:      u.Unit,
		Source:    u.Source,
		Timestamp: u.Timestamp,
		Valid:     u.Valid,
	})
	if err != nil {
		return
	}
	topic := br.cfg.StateTopic + "/" + u.Channel
	if token := br.client.Publish(topic, br.cfg.QoS, false, payload); token.Wait() && token.Error() != nil {
		br.logger.Printf("export: publish %s: %v", topic, token.Error())
	}
}

func (br *Bridge) publishEvent(ev bus.SafetyEvent) {
	if br.client == nil || !br.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	// events are retained so a dashboard joining late sees the last fault
	if token := br.client.Publish(br.cfg.EventTopic, br.cfg.QoS, true, payload); token.Wait() && token.Error() != nil {
		br.logger.Printf("export: publish %s: %v", br.cfg.EventTopic, token.Error())
	}
}
