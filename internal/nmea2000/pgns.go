// Package nmea2000 decodes and encodes NMEA2000 PGN frames carried as UDP
// datagrams. A datagram is one CAN frame: 4-byte big-endian 29-bit CAN id
// followed by 1 to 8 data bytes. Payloads longer than 8 bytes use the
// fast-packet framing handled by Reassembler.
package nmea2000

// Supported PGN catalog. Adding a PGN is a table entry in decode.go plus a
// constant here.
const (
	PGNRudder        uint32 = 127245
	PGNHeading       uint32 = 127250
	PGNRateOfTurn    uint32 = 127251
	PGNEngineRapid   uint32 = 127488
	PGNEngineDynamic uint32 = 127489
	PGNFluidLevel    uint32 = 127505
	PGNDCStatus      uint32 = 127506
	PGNBatteryStatus uint32 = 127508
	PGNSpeed         uint32 = 128259
	PGNDepth         uint32 = 128267
	PGNPositionRapid uint32 = 129025
	PGNWind          uint32 = 130306
	PGNPilotAlarm    uint32 = 65288  // vendor proprietary, single frame
	PGNPilotStatus   uint32 = 65379  // vendor proprietary, single frame
	PGNGroupFunction uint32 = 126208 // addressed fast packet, carries commands
)

// fastPGNs marks catalog PGNs that use fast-packet framing.
var fastPGNs = map[uint32]bool{
	PGNEngineDynamic: true,
	PGNDCStatus:      true,
	PGNGroupFunction: true,
}

// IsFastPacket reports whether a PGN uses multi-frame fast-packet framing.
// Only catalog PGNs are considered; anything else is treated as single
// frame and lands in Unknown rather than the reassembler.
func IsFastPacket(pgn uint32) bool {
	return fastPGNs[pgn]
}

// J1939 "not available" sentinels by field width. A field holding its
// sentinel decodes to valid=false, never to the raw number.
const (
	naU8  = 0xFF
	naU16 = 0xFFFF
	naU32 = 0xFFFFFFFF
	naI8  = 0x7F
	naI16 = 0x7FFF
	naI32 = 0x7FFFFFFF
)

// Vendor id bytes leading every proprietary frame (manufacturer code plus
// industry group, little endian, Raymarine marine).
const (
	vendorByte0 = 0x3B
	vendorByte1 = 0x9F
)
