package nmea2000

import (
	"encoding/binary"
	"fmt"
	"time"

	"helmlink/internal/state"
)

// PilotMode selects the autopilot steering reference.
type PilotMode uint8

const (
	ModeStandby PilotMode = iota
	ModeCompass
	ModeWind
	ModeTrack
)

func (m PilotMode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModeCompass:
		return "compass"
	case ModeWind:
		return "wind"
	case ModeTrack:
		return "track"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// CommandKind is the wire encoding of an autopilot operation.
type CommandKind uint8

const (
	CmdEngage CommandKind = iota + 1
	CmdDisengage
	CmdAdjustHeading
	CmdChangeMode
	CmdStandby
)

func (k CommandKind) String() string {
	switch k {
	case CmdEngage:
		return "engage"
	case CmdDisengage:
		return "disengage"
	case CmdAdjustHeading:
		return "adjust_heading"
	case CmdChangeMode:
		return "change_mode"
	case CmdStandby:
		return "standby"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// PilotCommand is the payload carried inside an addressed 126208 group
// function targeting the pilot status PGN. SID correlates the eventual
// acknowledgment in a PilotStatus frame.
type PilotCommand struct {
	Kind            CommandKind
	Mode            PilotMode
	HeadingDeltaDeg float64
	SID             uint8
}

func (PilotCommand) Updates(time.Time) []state.Update { return nil }

const (
	groupFunctionCommand = 0x01
	commandPayloadLen    = 9
)

// EncodePilotCommand builds the 126208 payload: function code, target PGN
// (3 bytes little endian), kind, mode, SID, heading delta in centidegrees
// (i16 little endian).
func EncodePilotCommand(c PilotCommand) ([]byte, error) {
	if c.Kind < CmdEngage || c.Kind > CmdStandby {
		return nil, fmt.Errorf("nmea2000: unknown command kind %d", c.Kind)
	}
	delta := int64(c.HeadingDeltaDeg * 100)
	if delta > 32767 || delta < -32768 {
		return nil, fmt.Errorf("nmea2000: heading delta %.1f out of range", c.HeadingDeltaDeg)
	}

	p := make([]byte, commandPayloadLen)
	p[0] = groupFunctionCommand
	p[1] = byte(PGNPilotStatus & 0xFF)
	p[2] = byte(PGNPilotStatus >> 8 & 0xFF)
	p[3] = byte(PGNPilotStatus >> 16 & 0xFF)
	p[4] = byte(c.Kind)
	p[5] = byte(c.Mode)
	p[6] = c.SID
	binary.LittleEndian.PutUint16(p[7:9], uint16(int16(delta)))
	return p, nil
}

// DecodePilotCommand is the inverse of EncodePilotCommand.
func DecodePilotCommand(payload []byte) (PilotCommand, error) {
	if len(payload) < commandPayloadLen {
		return PilotCommand{}, fmt.Errorf("nmea2000: command payload %d bytes", len(payload))
	}
	if payload[0] != groupFunctionCommand {
		return PilotCommand{}, fmt.Errorf("nmea2000: unsupported group function %d", payload[0])
	}
	target := uint32(payload[1]) | uint32(payload[2])<<8 | uint32(payload[3])<<16
	if target != PGNPilotStatus {
		return PilotCommand{}, fmt.Errorf("nmea2000: command targets pgn %d", target)
	}
	kind := CommandKind(payload[4])
	if kind < CmdEngage || kind > CmdStandby {
		return PilotCommand{}, fmt.Errorf("nmea2000: unknown command kind %d", kind)
	}
	delta := int16(binary.LittleEndian.Uint16(payload[7:9]))
	return PilotCommand{
		Kind:            kind,
		Mode:            PilotMode(payload[5]),
		SID:             payload[6],
		HeadingDeltaDeg: float64(delta) / 100,
	}, nil
}

// CommandFrames encodes a pilot command into ready-to-send datagrams:
// fast-packet framing on the 126208 PGN, addressed to the pilot.
func CommandFrames(c PilotCommand, seq uint8, source, dest uint8) ([][]byte, error) {
	payload, err := EncodePilotCommand(c)
	if err != nil {
		return nil, err
	}
	chunks, err := SplitFastPacket(seq, payload)
	if err != nil {
		return nil, err
	}
	header := Header{
		Priority:    3,
		PGN:         PGNGroupFunction,
		Source:      source,
		Destination: dest,
	}
	out := make([][]byte, 0, len(chunks))
	for _, data := range chunks {
		out = append(out, Frame{Header: header, Data: data}.Datagram())
	}
	return out, nil
}
