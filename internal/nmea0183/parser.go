package nmea0183

import (
	"strconv"
	"strings"

	"helmlink/internal/metrics"
)

// Parser turns raw sentence lines into Messages. It is single-goroutine
// streaming work: one line in, one Message out, no buffering.
type Parser struct {
	metrics *metrics.Set
}

func NewParser(m *metrics.Set) *Parser {
	return &Parser{metrics: m}
}

// Parse never fails: malformed input comes back as Unknown with a reason
// tag, counted for diagnostics.
func (p *Parser) Parse(line []byte) Message {
	raw := string(line)
	sent, err := ParseSentence(raw)
	if err != nil {
		reason := ReasonMalformed
		if strings.Contains(err.Error(), "checksum mismatch") {
			reason = ReasonInvalidChecksum
		}
		p.skip(reason)
		return Unknown{Raw: raw, Reason: reason}
	}

	var msg Message
	switch sent.Type {
	case "DPT":
		msg = parseDPT(sent)
	case "MWV":
		msg = parseMWV(sent)
	case "HDG":
		msg = parseHDG(sent)
	case "HDT":
		msg = parseHDT(sent)
	case "VHW":
		msg = parseVHW(sent)
	case "RSA":
		msg = parseRSA(sent)
	case "RMC":
		msg = parseRMC(sent)
	case "GGA":
		msg = parseGGA(sent)
	default:
		p.skip(ReasonUnsupported)
		return Unknown{Raw: raw, Reason: ReasonUnsupported}
	}

	if p.metrics != nil {
		p.metrics.SentencesParsed.Inc()
	}
	return msg
}

func (p *Parser) skip(reason string) {
	if p.metrics != nil {
		p.metrics.SentencesSkipped.WithLabelValues(reason).Inc()
	}
}

// DPT: 1=depth below transducer (m), 2=transducer offset (m), 3=max range.
func parseDPT(s Sentence) Message {
	depth, ok := s.floatField(1)
	offset, hasOffset := s.floatField(2)
	return Depth{
		BelowTransducerM: depth,
		OffsetM:          offset,
		HasOffset:        hasOffset,
		Valid:            ok,
	}
}

// MWV: 1=angle, 2=reference (R/T), 3=speed, 4=speed unit (N/M/K), 5=status.
func parseMWV(s Sentence) Message {
	angle, angleOK := s.floatField(1)
	speed, speedOK := s.floatField(3)
	status := s.field(5)

	ref := WindRelative
	if s.field(2) == "T" {
		ref = WindTrue
	}
	switch s.field(4) {
	case "M": // m/s
		speed *= 1.9438444924406048
	case "K": // km/h
		speed *= 0.5399568034557235
	}
	return Wind{
		AngleDeg:  angle,
		SpeedKt:   speed,
		Reference: ref,
		Valid:     angleOK && speedOK && status == "A",
	}
}

// HDG: 1=magnetic heading, 2/3=deviation, 4/5=variation.
func parseHDG(s Sentence) Message {
	hdg, ok := s.floatField(1)
	return Heading{HeadingDeg: hdg, Magnetic: true, Valid: ok}
}

// HDT: 1=true heading.
func parseHDT(s Sentence) Message {
	hdg, ok := s.floatField(1)
	return Heading{HeadingDeg: hdg, Magnetic: false, Valid: ok}
}

// VHW: 5=water speed (knots), 7=water speed (km/h).
func parseVHW(s Sentence) Message {
	kt, ok := s.floatField(5)
	if !ok {
		if kmh, kmhOK := s.floatField(7); kmhOK {
			return WaterSpeed{SpeedKt: kmh * 0.5399568034557235, Valid: true}
		}
	}
	return WaterSpeed{SpeedKt: kt, Valid: ok}
}

// RSA: 1=starboard (or single) rudder angle, 2=status.
func parseRSA(s Sentence) Message {
	angle, ok := s.floatField(1)
	return Rudder{AngleDeg: angle, Valid: ok && s.field(2) == "A"}
}

// RMC: 2=status, 3/4=lat, 5/6=lon.
func parseRMC(s Sentence) Message {
	if len(s.Fields) < 7 || s.field(2) != "A" {
		return Position{Valid: false}
	}
	lat, latOK := parseLatLon(s.field(3), s.field(4))
	lon, lonOK := parseLatLon(s.field(5), s.field(6))
	return Position{LatDeg: lat, LonDeg: lon, Valid: latOK && lonOK}
}

// GGA: 2/3=lat, 4/5=lon, 6=fix quality (0=invalid).
func parseGGA(s Sentence) Message {
	if len(s.Fields) < 7 {
		return Position{Valid: false}
	}
	q := s.field(6)
	if q == "" || q == "0" {
		return Position{Valid: false}
	}
	lat, latOK := parseLatLon(s.field(2), s.field(3))
	lon, lonOK := parseLatLon(s.field(4), s.field(5))
	return Position{LatDeg: lat, LonDeg: lon, Valid: latOK && lonOK}
}

// parseLatLon parses ddmm.mmmm / dddmm.mmmm plus hemisphere into decimal
// degrees. The last two digits of the integer part are whole minutes.
func parseLatLon(v, hemi string) (float64, bool) {
	hemi = strings.ToUpper(hemi)
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return 0, false
	}
	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
