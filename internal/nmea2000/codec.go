package nmea2000

import (
	"fmt"
	"time"

	"helmlink/internal/metrics"
)

// Codec is the stateful decode path for one UDP feed: datagram in, typed
// message out, with fast-packet reassembly in between. ProcessDatagram is
// owned by the transport's read loop; SweepReassembly may run elsewhere.
type Codec struct {
	reasm   *Reassembler
	metrics *metrics.Set
}

func NewCodec(reassemblyTimeout time.Duration, m *metrics.Set) *Codec {
	return &Codec{
		reasm:   NewReassembler(reassemblyTimeout),
		metrics: m,
	}
}

// ProcessDatagram decodes one datagram. It returns (nil, nil) while a
// fast-packet sequence is still accumulating. Errors mean the datagram was
// unusable and dropped; the stream continues.
func (c *Codec) ProcessDatagram(b []byte, now time.Time) (Message, error) {
	frame, err := ParseDatagram(b)
	if err != nil {
		return nil, err
	}

	payload := frame.Data
	if IsFastPacket(frame.Header.PGN) {
		complete, done, err := c.reasm.Push(frame, now)
		if err != nil {
			return nil, fmt.Errorf("pgn %d: %w", frame.Header.PGN, err)
		}
		if !done {
			return nil, nil
		}
		payload = complete
	}

	msg := Decode(frame.Header.PGN, payload)
	if c.metrics != nil {
		if _, unknown := msg.(Unknown); unknown {
			c.metrics.PGNsUnknown.Inc()
		} else {
			c.metrics.PGNsDecoded.WithLabelValues(pgnName(frame.Header.PGN)).Inc()
		}
	}
	return msg, nil
}

// SweepReassembly expires stale fast-packet sequences. The caller runs it on
// its read-timeout ticks.
func (c *Codec) SweepReassembly(now time.Time) int {
	n := c.reasm.Sweep(now)
	if n > 0 && c.metrics != nil {
		c.metrics.ReassemblyExpired.Add(float64(n))
	}
	return n
}
