package nmea2000

import (
	"encoding/binary"
	"fmt"
)

// Field readers return ok=false for short buffers and J1939 "not available"
// sentinels, so the sentinel number never leaks into a decoded value.

func fieldU8(data []byte, off int) (uint8, bool) {
	if off >= len(data) {
		return 0, false
	}
	v := data[off]
	return v, v != naU8
}

func fieldU16(data []byte, off int) (uint16, bool) {
	if off+1 >= len(data) {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(data[off : off+2])
	return v, v != naU16
}

func fieldU32(data []byte, off int) (uint32, bool) {
	if off+3 >= len(data) {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(data[off : off+4])
	return v, v != naU32
}

func fieldI16(data []byte, off int) (int16, bool) {
	if off+1 >= len(data) {
		return 0, false
	}
	v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
	return v, v != naI16
}

func fieldI32(data []byte, off int) (int32, bool) {
	if off+3 >= len(data) {
		return 0, false
	}
	v := int32(binary.LittleEndian.Uint32(data[off : off+4]))
	return v, v != naI32
}

type decodeFunc func(data []byte) Message

// pgnDecoders is the exhaustive decode table. Unlisted PGNs fall through to
// Unknown without error.
var pgnDecoders = map[uint32]decodeFunc{
	PGNRudder:        decodeRudder,
	PGNHeading:       decodeHeading,
	PGNRateOfTurn:    decodeRateOfTurn,
	PGNEngineRapid:   decodeEngineRapid,
	PGNEngineDynamic: decodeEngineDynamic,
	PGNFluidLevel:    decodeFluidLevel,
	PGNDCStatus:      decodeDCStatus,
	PGNBatteryStatus: decodeBatteryStatus,
	PGNSpeed:         decodeSpeed,
	PGNDepth:         decodeDepth,
	PGNPositionRapid: decodePositionRapid,
	PGNWind:          decodeWind,
	PGNPilotStatus:   decodePilotStatus,
	PGNPilotAlarm:    decodePilotAlarm,
	PGNGroupFunction: decodeGroupFunction,
}

// Decode maps one complete PGN payload to a typed message.
func Decode(pgn uint32, data []byte) Message {
	if fn, ok := pgnDecoders[pgn]; ok {
		return fn(data)
	}
	return Unknown{PGN: pgn, Raw: append([]byte(nil), data...)}
}

// 127245: instance, direction order, angle order (i16, 1e-4 rad), position
// (i16, 1e-4 rad).
func decodeRudder(data []byte) Message {
	instance, _ := fieldU8(data, 0)
	order, orderOK := fieldI16(data, 2)
	pos, posOK := fieldI16(data, 4)
	return Rudder{
		Instance:      instance,
		AngleDeg:      float64(pos) * 1e-4 * radToDeg,
		AngleValid:    posOK,
		AngleOrderDeg: float64(order) * 1e-4 * radToDeg,
		OrderValid:    orderOK,
	}
}

// 127250: sid, heading (u16, 1e-4 rad), deviation, variation, reference.
func decodeHeading(data []byte) Message {
	hdg, ok := fieldU16(data, 1)
	ref, _ := fieldU8(data, 7)
	return Heading{
		HeadingDeg: float64(hdg) * 1e-4 * radToDeg,
		Valid:      ok,
		Reference:  ref & 0x3,
	}
}

// 127251: sid, rate (i32, 3.125e-8 rad/s).
func decodeRateOfTurn(data []byte) Message {
	rot, ok := fieldI32(data, 1)
	return RateOfTurn{
		RateDegPerSec: float64(rot) * 3.125e-8 * radToDeg,
		Valid:         ok,
	}
}

// 127488: instance, speed (u16, 0.25 rpm), boost, tilt.
func decodeEngineRapid(data []byte) Message {
	instance, _ := fieldU8(data, 0)
	speed, ok := fieldU16(data, 1)
	return EngineRapid{
		Instance: instance,
		RPM:      float64(speed) * 0.25,
		Valid:    ok,
	}
}

// 127489 (fast): instance, oil pressure (u16, 100 Pa), oil temp, coolant
// temp (u16, 0.01 K).
func decodeEngineDynamic(data []byte) Message {
	instance, _ := fieldU8(data, 0)
	oil, oilOK := fieldU16(data, 1)
	coolant, coolOK := fieldU16(data, 5)
	return EngineDynamic{
		Instance:       instance,
		OilPressureKPa: float64(oil) * 100 / 1000,
		OilValid:       oilOK,
		CoolantTempC:   float64(coolant)*0.01 - 273.15,
		CoolantValid:   coolOK,
	}
}

// 127505: instance+type packed byte, level (i16, 0.004 %), capacity.
func decodeFluidLevel(data []byte) Message {
	packed, _ := fieldU8(data, 0)
	level, ok := fieldI16(data, 1)
	return FluidLevel{
		Instance:     packed & 0x0F,
		FluidType:    packed >> 4,
		LevelPercent: float64(level) * 0.004,
		Valid:        ok,
	}
}

// 127506 (fast): sid, instance, dc type, state of charge (u8 %), state of
// health, time remaining (u16 min).
func decodeDCStatus(data []byte) Message {
	instance, _ := fieldU8(data, 1)
	soc, socOK := fieldU8(data, 3)
	remaining, remOK := fieldU16(data, 5)
	return DCStatus{
		Instance:        instance,
		StateOfCharge:   float64(soc),
		ChargeValid:     socOK,
		TimeRemainingMn: float64(remaining),
		TimeValid:       remOK,
	}
}

// 127508: instance, voltage (u16, 0.01 V), current (i16, 0.1 A).
func decodeBatteryStatus(data []byte) Message {
	instance, _ := fieldU8(data, 0)
	volts, vOK := fieldU16(data, 1)
	amps, aOK := fieldI16(data, 3)
	return BatteryStatus{
		Instance:     instance,
		Voltage:      float64(volts) * 0.01,
		VoltageValid: vOK,
		Current:      float64(amps) * 0.1,
		CurrentValid: aOK,
	}
}

// 128259: sid, water speed (u16, 0.01 m/s).
func decodeSpeed(data []byte) Message {
	speed, ok := fieldU16(data, 1)
	return Speed{
		WaterKt: float64(speed) * 0.01 * msToKt,
		Valid:   ok,
	}
}

// 128267: sid, depth (u32, 0.01 m), offset (i16, 0.001 m).
func decodeDepth(data []byte) Message {
	depth, dOK := fieldU32(data, 1)
	offset, oOK := fieldI16(data, 5)
	return Depth{
		DepthM:      float64(depth) * 0.01,
		DepthValid:  dOK,
		OffsetM:     float64(offset) * 0.001,
		OffsetValid: oOK,
	}
}

// 129025: lat (i32, 1e-7 deg), lon (i32, 1e-7 deg).
func decodePositionRapid(data []byte) Message {
	lat, latOK := fieldI32(data, 0)
	lon, lonOK := fieldI32(data, 4)
	return Position{
		LatDeg: float64(lat) * 1e-7,
		LonDeg: float64(lon) * 1e-7,
		Valid:  latOK && lonOK,
	}
}

// 130306: sid, speed (u16, 0.01 m/s), angle (u16, 1e-4 rad), reference.
func decodeWind(data []byte) Message {
	speed, sOK := fieldU16(data, 1)
	angle, aOK := fieldU16(data, 3)
	ref, _ := fieldU8(data, 5)
	return Wind{
		SpeedKt:    float64(speed) * 0.01 * msToKt,
		SpeedValid: sOK,
		AngleDeg:   float64(angle) * 1e-4 * radToDeg,
		AngleValid: aOK,
		Reference:  ref & 0x7,
	}
}

// 65379: vendor id, mode, submode, sid, flags.
func decodePilotStatus(data []byte) Message {
	if len(data) < 6 || data[0] != vendorByte0 || data[1] != vendorByte1 {
		return Unknown{PGN: PGNPilotStatus, Raw: append([]byte(nil), data...)}
	}
	flags := data[5]
	return PilotStatus{
		Mode:     PilotMode(data[2]),
		SID:      data[4],
		Engaged:  flags&0x01 != 0,
		Acked:    flags&0x02 != 0,
		Rejected: flags&0x04 != 0,
	}
}

// 65288: vendor id, alarm status, alarm id, alarm group.
func decodePilotAlarm(data []byte) Message {
	if len(data) < 5 || data[0] != vendorByte0 || data[1] != vendorByte1 {
		return Unknown{PGN: PGNPilotAlarm, Raw: append([]byte(nil), data...)}
	}
	return PilotAlarm{
		Raised:  data[2] != 0,
		AlarmID: data[3],
		Group:   data[4],
	}
}

// 126208: command group function carrying a pilot command.
func decodeGroupFunction(data []byte) Message {
	cmd, err := DecodePilotCommand(data)
	if err != nil {
		return Unknown{PGN: PGNGroupFunction, Raw: append([]byte(nil), data...)}
	}
	return cmd
}

// sanity guard used by tests and the codec
func pgnName(pgn uint32) string {
	return fmt.Sprintf("%d", pgn)
}
