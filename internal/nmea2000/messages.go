package nmea2000

import (
	"math"
	"time"

	"helmlink/internal/state"
)

const (
	radToDeg = 180.0 / math.Pi
	msToKt   = 1.9438444924406048
)

// Message is one decoded PGN. Updates maps it onto vessel-state channels.
type Message interface {
	Updates(ts time.Time) []state.Update
}

func upd(channel string, value float64, unit string, ts time.Time, valid bool) state.Update {
	return state.Update{
		Channel: channel, Value: value, Unit: unit,
		Source: state.ProtocolNMEA2000, Timestamp: ts, Valid: valid,
	}
}

// Rudder (127245). Angles in degrees, starboard positive.
type Rudder struct {
	Instance      uint8
	AngleDeg      float64
	AngleValid    bool
	AngleOrderDeg float64
	OrderValid    bool
}

func (r Rudder) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelRudderAngle, r.AngleDeg, "deg", ts, r.AngleValid),
	}
}

// Heading (127250). Degrees.
type Heading struct {
	HeadingDeg float64
	Valid      bool
	Reference  uint8
}

func (h Heading) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelHeading, h.HeadingDeg, "deg", ts, h.Valid),
	}
}

// RateOfTurn (127251). Degrees per second, starboard positive.
type RateOfTurn struct {
	RateDegPerSec float64
	Valid         bool
}

func (r RateOfTurn) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelRateOfTurn, r.RateDegPerSec, "deg/s", ts, r.Valid),
	}
}

// EngineRapid (127488).
type EngineRapid struct {
	Instance uint8
	RPM      float64
	Valid    bool
}

func (e EngineRapid) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelEngineRPM, e.RPM, "rpm", ts, e.Valid),
	}
}

// EngineDynamic (127489, fast packet).
type EngineDynamic struct {
	Instance       uint8
	OilPressureKPa float64
	OilValid       bool
	CoolantTempC   float64
	CoolantValid   bool
}

func (e EngineDynamic) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelEngineOil, e.OilPressureKPa, "kPa", ts, e.OilValid),
		upd(state.ChannelEngineTemp, e.CoolantTempC, "C", ts, e.CoolantValid),
	}
}

// FluidLevel (127505).
type FluidLevel struct {
	Instance     uint8
	FluidType    uint8
	LevelPercent float64
	Valid        bool
}

func (f FluidLevel) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelFuelLevel, f.LevelPercent, "%", ts, f.Valid),
	}
}

// DCStatus (127506, fast packet).
type DCStatus struct {
	Instance        uint8
	StateOfCharge   float64
	ChargeValid     bool
	TimeRemainingMn float64
	TimeValid       bool
}

func (d DCStatus) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd("battery.house.soc", d.StateOfCharge, "%", ts, d.ChargeValid),
	}
}

// BatteryStatus (127508).
type BatteryStatus struct {
	Instance     uint8
	Voltage      float64
	VoltageValid bool
	Current      float64
	CurrentValid bool
}

func (b BatteryStatus) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelBatteryVolts, b.Voltage, "V", ts, b.VoltageValid),
		upd(state.ChannelBatteryAmps, b.Current, "A", ts, b.CurrentValid),
	}
}

// Speed (128259). Water-referenced speed in knots.
type Speed struct {
	WaterKt float64
	Valid   bool
}

func (s Speed) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelSpeedWater, s.WaterKt, "kt", ts, s.Valid),
	}
}

// Depth (128267). Meters below transducer plus offset.
type Depth struct {
	DepthM      float64
	DepthValid  bool
	OffsetM     float64
	OffsetValid bool
}

func (d Depth) Updates(ts time.Time) []state.Update {
	v := d.DepthM
	if d.OffsetValid {
		v += d.OffsetM
	}
	return []state.Update{
		upd(state.ChannelDepth, v, "m", ts, d.DepthValid),
	}
}

// Position (129025, rapid update). Decimal degrees.
type Position struct {
	LatDeg float64
	LonDeg float64
	Valid  bool
}

func (p Position) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelPositionLat, p.LatDeg, "deg", ts, p.Valid),
		upd(state.ChannelPositionLon, p.LonDeg, "deg", ts, p.Valid),
	}
}

// Wind (130306). Speed in knots, angle in degrees.
type Wind struct {
	SpeedKt    float64
	SpeedValid bool
	AngleDeg   float64
	AngleValid bool
	Reference  uint8
}

func (w Wind) Updates(ts time.Time) []state.Update {
	return []state.Update{
		upd(state.ChannelWindSpeed, w.SpeedKt, "kt", ts, w.SpeedValid),
		upd(state.ChannelWindAngle, w.AngleDeg, "deg", ts, w.AngleValid),
	}
}

// PilotStatus (65379) is the vendor status frame. It doubles as the command
// acknowledgment channel: SID echoes the id byte of the command being
// answered.
type PilotStatus struct {
	Mode     PilotMode
	Engaged  bool
	SID      uint8
	Acked    bool
	Rejected bool
}

func (p PilotStatus) Updates(ts time.Time) []state.Update {
	engaged := 0.0
	if p.Engaged {
		engaged = 1
	}
	return []state.Update{
		upd(state.ChannelPilotMode, float64(p.Mode), "mode", ts, true),
		upd(state.ChannelPilotEngaged, engaged, "bool", ts, true),
	}
}

// PilotAlarm (65288) is the vendor alarm frame.
type PilotAlarm struct {
	AlarmID uint8
	Group   uint8
	Raised  bool
}

func (p PilotAlarm) Updates(time.Time) []state.Update { return nil }

// Unknown preserves frames with no decoder. Raw is the reassembled payload.
type Unknown struct {
	PGN uint32
	Raw []byte
}

func (u Unknown) Updates(time.Time) []state.Update { return nil }
