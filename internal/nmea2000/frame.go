package nmea2000

import (
	"encoding/binary"
	"fmt"
)

// Header is the decoded 29-bit CAN identifier.
type Header struct {
	Priority    uint8
	PGN         uint32
	Source      uint8
	Destination uint8
}

// Frame is one CAN frame: header plus up to 8 data bytes.
type Frame struct {
	Header Header
	Data   []byte
}

// ParseCANID splits a 29-bit extended CAN id per SAE J1939: 3 priority
// bits, data page, PDU format, PDU specific, source address. PDU1 frames
// (PF < 240) are addressed and PS is the destination; PDU2 frames are
// broadcast and PS extends the PGN.
func ParseCANID(id uint32) Header {
	pri := uint8((id >> 26) & 0x7)
	dp := (id >> 24) & 0x3
	pf := (id >> 16) & 0xFF
	ps := (id >> 8) & 0xFF
	src := uint8(id & 0xFF)

	h := Header{Priority: pri, Source: src, Destination: 0xFF}
	if pf < 240 {
		h.PGN = dp<<16 | pf<<8
		h.Destination = uint8(ps)
	} else {
		h.PGN = dp<<16 | pf<<8 | ps
	}
	return h
}

// CANID builds the 29-bit identifier back from a header.
func (h Header) CANID() uint32 {
	id := uint32(h.Priority&0x7) << 26
	pf := (h.PGN >> 8) & 0xFF
	id |= ((h.PGN >> 16) & 0x3) << 24
	id |= pf << 16
	if pf < 240 {
		id |= uint32(h.Destination) << 8
	} else {
		id |= (h.PGN & 0xFF) << 8
	}
	id |= uint32(h.Source)
	return id
}

// ParseDatagram decodes the wire form used on the UDP transport: 4-byte
// big-endian CAN id then 1..8 data bytes.
func ParseDatagram(b []byte) (Frame, error) {
	if len(b) < 5 || len(b) > 12 {
		return Frame{}, fmt.Errorf("nmea2000: datagram size %d", len(b))
	}
	id := binary.BigEndian.Uint32(b[:4])
	if id > 0x1FFFFFFF {
		return Frame{}, fmt.Errorf("nmea2000: can id %08X exceeds 29 bits", id)
	}
	return Frame{
		Header: ParseCANID(id),
		Data:   append([]byte(nil), b[4:]...),
	}, nil
}

// Datagram encodes the frame back to its wire form.
func (f Frame) Datagram() []byte {
	out := make([]byte, 4+len(f.Data))
	binary.BigEndian.PutUint32(out[:4], f.Header.CANID())
	copy(out[4:], f.Data)
	return out
}
