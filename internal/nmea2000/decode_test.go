package nmea2000

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"helmlink/internal/state"
)

func TestDecodeRudder(t *testing.T) {
	// Position 0.1 rad = 1000 raw; order left not available.
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0xE8, 0x03, 0xFF, 0xFF}
	msg := Decode(PGNRudder, data)
	r, ok := msg.(Rudder)
	if !ok {
		t.Fatalf("expected Rudder, got %T", msg)
	}
	if !r.AngleValid {
		t.Fatalf("expected valid angle")
	}
	if math.Abs(r.AngleDeg-0.1*radToDeg) > 1e-6 {
		t.Fatalf("angle=%v", r.AngleDeg)
	}
	if r.OrderValid {
		t.Fatalf("order sentinel must be invalid")
	}
}

func TestDecodeHeadingSentinel(t *testing.T) {
	data := []byte{0x00, 0xFF, 0xFF, 0xFF, 0x7F, 0xFF, 0x7F, 0xFD}
	h := Decode(PGNHeading, data).(Heading)
	if h.Valid {
		t.Fatalf("0xFFFF heading must decode to valid=false")
	}

	ups := h.Updates(time.Now())
	if len(ups) != 1 || ups[0].Valid {
		t.Fatalf("heading update must carry valid=false")
	}
}

func TestDecodeHeadingValue(t *testing.T) {
	// 1.5708 rad (~90 deg) = 15708 raw.
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[1:3], 15708)
	data[7] = 0xFD
	h := Decode(PGNHeading, data).(Heading)
	if !h.Valid {
		t.Fatalf("expected valid heading")
	}
	if math.Abs(h.HeadingDeg-90.0) > 0.01 {
		t.Fatalf("heading=%v want ~90", h.HeadingDeg)
	}
}

func TestDecodeDepthSentinel(t *testing.T) {
	data := []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0xFF}
	d := Decode(PGNDepth, data).(Depth)
	if d.DepthValid {
		t.Fatalf("depth sentinel must be valid=false, not 42949672.95")
	}
}

func TestDecodeDepthWithOffset(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[1:5], 1240) // 12.40 m
	binary.LittleEndian.PutUint16(data[5:7], 500)  // +0.5 m
	d := Decode(PGNDepth, data).(Depth)
	if !d.DepthValid || !d.OffsetValid {
		t.Fatalf("flags %+v", d)
	}
	ups := d.Updates(time.Now())
	if math.Abs(ups[0].Value-12.9) > 1e-9 {
		t.Fatalf("depth channel %v want 12.9", ups[0].Value)
	}
	if ups[0].Channel != state.ChannelDepth {
		t.Fatalf("channel %q", ups[0].Channel)
	}
}

func TestDecodeEngineRapid(t *testing.T) {
	data := make([]byte, 8)
	data[0] = 0
	binary.LittleEndian.PutUint16(data[1:3], 9200) // 2300 rpm
	e := Decode(PGNEngineRapid, data).(EngineRapid)
	if !e.Valid || e.RPM != 2300 {
		t.Fatalf("engine %+v", e)
	}
}

func TestDecodeBatteryStatus(t *testing.T) {
	amps := int16(-155) // -15.5 A
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[1:3], 1282) // 12.82 V
	binary.LittleEndian.PutUint16(data[3:5], uint16(amps))
	b := Decode(PGNBatteryStatus, data).(BatteryStatus)
	if !b.VoltageValid || math.Abs(b.Voltage-12.82) > 1e-9 {
		t.Fatalf("volts %+v", b)
	}
	if !b.CurrentValid || math.Abs(b.Current+15.5) > 1e-9 {
		t.Fatalf("amps %+v", b)
	}
}

func TestDecodeFluidLevel(t *testing.T) {
	data := make([]byte, 8)
	data[0] = 0x10 // instance 0, fluid type 1
	binary.LittleEndian.PutUint16(data[1:3], 12500)
	f := Decode(PGNFluidLevel, data).(FluidLevel)
	if !f.Valid || math.Abs(f.LevelPercent-50.0) > 1e-9 {
		t.Fatalf("fluid %+v", f)
	}
	if f.FluidType != 1 {
		t.Fatalf("type %d", f.FluidType)
	}
}

func TestDecodePositionRapid(t *testing.T) {
	lat, lon := int32(481173000), int32(-1225000000) // 48.1173, -122.5
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(lat))
	binary.LittleEndian.PutUint32(data[4:8], uint32(lon))
	p := Decode(PGNPositionRapid, data).(Position)
	if !p.Valid {
		t.Fatalf("expected valid position")
	}
	if math.Abs(p.LatDeg-48.1173) > 1e-6 || math.Abs(p.LonDeg+122.5) > 1e-6 {
		t.Fatalf("lat=%v lon=%v", p.LatDeg, p.LonDeg)
	}
}

func TestDecodeWind(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[1:3], 514)   // 5.14 m/s ~ 10 kt
	binary.LittleEndian.PutUint16(data[3:5], 10472) // ~60 deg
	data[5] = 0x02
	w := Decode(PGNWind, data).(Wind)
	if !w.SpeedValid || !w.AngleValid {
		t.Fatalf("wind %+v", w)
	}
	if math.Abs(w.SpeedKt-9.99) > 0.05 || math.Abs(w.AngleDeg-60.0) > 0.01 {
		t.Fatalf("speed=%v angle=%v", w.SpeedKt, w.AngleDeg)
	}
}

func TestDecodePilotStatus(t *testing.T) {
	data := []byte{vendorByte0, vendorByte1, byte(ModeCompass), 0x00, 0x7A, 0x03, 0xFF, 0xFF}
	p := Decode(PGNPilotStatus, data).(PilotStatus)
	if p.Mode != ModeCompass || !p.Engaged || !p.Acked || p.Rejected {
		t.Fatalf("status %+v", p)
	}
	if p.SID != 0x7A {
		t.Fatalf("sid %02X", p.SID)
	}

	ups := p.Updates(time.Now())
	if len(ups) != 2 {
		t.Fatalf("updates %d", len(ups))
	}
	if ups[1].Channel != state.ChannelPilotEngaged || ups[1].Value != 1 {
		t.Fatalf("engaged update %+v", ups[1])
	}
}

func TestDecodePilotStatusWrongVendor(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0xFF, 0xFF}
	if _, ok := Decode(PGNPilotStatus, data).(Unknown); !ok {
		t.Fatalf("foreign vendor frame must decode as Unknown")
	}
}

func TestDecodeUnknownPGN(t *testing.T) {
	msg := Decode(130316, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	u, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", msg)
	}
	if u.PGN != 130316 || len(u.Raw) != 8 {
		t.Fatalf("unknown %+v", u)
	}
	if u.Updates(time.Now()) != nil {
		t.Fatalf("unknown must not produce updates")
	}
}
