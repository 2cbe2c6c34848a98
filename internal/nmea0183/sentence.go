// Package nmea0183 parses ASCII NMEA0183 sentences into typed records and
// maps them onto vessel-state channels. Bad input is isolated per sentence;
// nothing here aborts the stream.
package nmea0183

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Sentence is the tokenized form of one line: talker+type split out and the
// comma-separated payload fields (field 0 is the talker+type word).
type Sentence struct {
	Talker string
	Type   string
	Fields []string
}

// ParseSentence validates framing and checksum. The checksum is the XOR of
// every byte between the leading '$'/'!' and the '*'.
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return Sentence{}, fmt.Errorf("nmea0183: empty line")
	}
	if line[0] != '$' && line[0] != '!' {
		return Sentence{}, fmt.Errorf("nmea0183: missing '$' or '!'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return Sentence{}, fmt.Errorf("nmea0183: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, fmt.Errorf("nmea0183: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return Sentence{}, fmt.Errorf("nmea0183: bad checksum field")
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return Sentence{}, fmt.Errorf("nmea0183: checksum mismatch (got %02X want %02X)", got, want[0])
	}

	parts := strings.Split(payload, ",")
	typeField := parts[0]
	if len(typeField) < 3 {
		return Sentence{}, fmt.Errorf("nmea0183: short type %q", typeField)
	}
	talker := ""
	st := typeField
	if len(typeField) > 3 {
		talker = typeField[:len(typeField)-3]
		st = typeField[len(typeField)-3:]
	}
	return Sentence{
		Talker: strings.ToUpper(talker),
		Type:   strings.ToUpper(st),
		Fields: parts,
	}, nil
}

func (s Sentence) field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return strings.TrimSpace(s.Fields[i])
}

// floatField parses field i as a float. Empty and unparsable fields report
// ok=false instead of zero so callers carry validity, not sentinel zeros.
func (s Sentence) floatField(i int) (float64, bool) {
	v := s.field(i)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
