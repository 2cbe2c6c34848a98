// Package state holds the canonical vessel state: one entry per logical
// channel, merged from both protocol feeds.
package state

import "time"

// Protocol tags which wire format produced a value.
type Protocol string

const (
	ProtocolNMEA0183 Protocol = "nmea0183"
	ProtocolNMEA2000 Protocol = "nmea2000"
)

// Well-known channel names. Parsers map typed records onto these.
const (
	ChannelDepth        = "depth.primary"
	ChannelHeading      = "heading"
	ChannelRateOfTurn   = "heading.rate_of_turn"
	ChannelRudderAngle  = "rudder.angle"
	ChannelSpeedWater   = "speed.water"
	ChannelWindAngle    = "wind.angle"
	ChannelWindSpeed    = "wind.speed"
	ChannelPositionLat  = "position.lat"
	ChannelPositionLon  = "position.lon"
	ChannelEngineRPM    = "engine.port.rpm"
	ChannelEngineTemp   = "engine.port.coolant_temp"
	ChannelEngineOil    = "engine.port.oil_pressure"
	ChannelFuelLevel    = "tank.fuel.level"
	ChannelBatteryVolts = "battery.house.voltage"
	ChannelBatteryAmps  = "battery.house.current"
	ChannelPilotMode    = "autopilot.mode"
	ChannelPilotEngaged = "autopilot.engaged"
)

// Update is one parsed value destined for a channel.
type Update struct {
	Channel   string
	Value     float64
	Unit      string
	Source    Protocol
	Timestamp time.Time
	Valid     bool
}

// Entry is the stored view of a channel. Stale entries are retained so
// consumers can tell "no data ever" from "data went stale".
type Entry struct {
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	Source      Protocol  `json:"source"`
	LastUpdated time.Time `json:"last_updated"`
	Valid       bool      `json:"valid"`
	Stale       bool      `json:"stale"`
}
