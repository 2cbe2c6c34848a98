package nmea0183

import (
	"time"

	"helmlink/internal/state"
)

// Message is one parsed sentence. Updates maps it onto zero or more
// vessel-state channels.
type Message interface {
	Updates(ts time.Time) []state.Update
}

// Depth from DPT: water depth below the transducer plus the transducer
// offset (positive offset = distance to waterline, negative = to keel).
type Depth struct {
	BelowTransducerM float64
	OffsetM          float64
	HasOffset        bool
	Valid            bool
}

func (d Depth) Updates(ts time.Time) []state.Update {
	v := d.BelowTransducerM
	if d.HasOffset {
		v += d.OffsetM
	}
	return []state.Update{{
		Channel: state.ChannelDepth, Value: v, Unit: "m",
		Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: d.Valid,
	}}
}

type WindReference int

const (
	WindRelative WindReference = iota
	WindTrue
)

// Wind from MWV.
type Wind struct {
	AngleDeg  float64
	SpeedKt   float64
	Reference WindReference
	Valid     bool
}

func (w Wind) Updates(ts time.Time) []state.Update {
	return []state.Update{
		{Channel: state.ChannelWindAngle, Value: w.AngleDeg, Unit: "deg",
			Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: w.Valid},
		{Channel: state.ChannelWindSpeed, Value: w.SpeedKt, Unit: "kt",
			Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: w.Valid},
	}
}

// Heading from HDG (magnetic) or HDT (true).
type Heading struct {
	HeadingDeg float64
	Magnetic   bool
	Valid      bool
}

func (h Heading) Updates(ts time.Time) []state.Update {
	return []state.Update{{
		Channel: state.ChannelHeading, Value: h.HeadingDeg, Unit: "deg",
		Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: h.Valid,
	}}
}

// Position from RMC or GGA.
type Position struct {
	LatDeg float64
	LonDeg float64
	Valid  bool
}

func (p Position) Updates(ts time.Time) []state.Update {
	return []state.Update{
		{Channel: state.ChannelPositionLat, Value: p.LatDeg, Unit: "deg",
			Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: p.Valid},
		{Channel: state.ChannelPositionLon, Value: p.LonDeg, Unit: "deg",
			Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: p.Valid},
	}
}

// WaterSpeed from VHW.
type WaterSpeed struct {
	SpeedKt float64
	Valid   bool
}

func (w WaterSpeed) Updates(ts time.Time) []state.Update {
	return []state.Update{{
		Channel: state.ChannelSpeedWater, Value: w.SpeedKt, Unit: "kt",
		Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: w.Valid,
	}}
}

// Rudder from RSA. Starboard positive.
type Rudder struct {
	AngleDeg float64
	Valid    bool
}

func (r Rudder) Updates(ts time.Time) []state.Update {
	return []state.Update{{
		Channel: state.ChannelRudderAngle, Value: r.AngleDeg, Unit: "deg",
		Source: state.ProtocolNMEA0183, Timestamp: ts, Valid: r.Valid,
	}}
}

// Unknown preserves sentences that failed validation or have no typed
// mapping. Reason is a short tag usable as a diagnostics label.
type Unknown struct {
	Raw    string
	Reason string
}

func (u Unknown) Updates(time.Time) []state.Update { return nil }

const (
	ReasonInvalidChecksum = "invalid_checksum"
	ReasonMalformed       = "malformed"
	ReasonUnsupported     = "unsupported"
)
