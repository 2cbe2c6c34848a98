package nmea2000

import (
	"fmt"
	"sync"
	"time"
)

// Fast-packet framing: the first frame of a sequence carries a sequence and
// frame counter byte (counter 0), the total payload length, and up to 6
// payload bytes; every following frame carries the counter byte and up to 7
// payload bytes. 6 + 31*7 bounds the payload at 223 bytes.
const FastPacketMaxPayload = 223

type reassemblyKey struct {
	pgn    uint32
	source uint8
	seq    uint8
}

type pendingAssembly struct {
	total     int
	payload   []byte
	nextCtr   uint8
	startedAt time.Time
}

// Reassembler collects fast-packet frames into whole payloads. Sequences
// that do not complete within the timeout are discarded, not retried; the
// sender will start a fresh sequence on its own schedule. Push runs on the
// read loop while Sweep runs on the safety ticker, hence the lock.
type Reassembler struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[reassemblyKey]*pendingAssembly
}

func NewReassembler(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Reassembler{
		timeout: timeout,
		pending: make(map[reassemblyKey]*pendingAssembly),
	}
}

// Push feeds one frame of a fast-packet sequence. It returns the complete
// payload once the final frame arrives.
func (r *Reassembler) Push(f Frame, now time.Time) ([]byte, bool, error) {
	if len(f.Data) < 2 {
		return nil, false, fmt.Errorf("fastpacket: frame too short (%d bytes)", len(f.Data))
	}
	seq := f.Data[0] >> 5
	ctr := f.Data[0] & 0x1F
	key := reassemblyKey{pgn: f.Header.PGN, source: f.Header.Source, seq: seq}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ctr == 0 {
		total := int(f.Data[1])
		if total == 0 || total > FastPacketMaxPayload {
			return nil, false, fmt.Errorf("fastpacket: bad total length %d", total)
		}
		p := &pendingAssembly{
			total:     total,
			payload:   make([]byte, 0, total),
			nextCtr:   1,
			startedAt: now,
		}
		p.payload = append(p.payload, f.Data[2:]...)
		if len(p.payload) >= total {
			delete(r.pending, key)
			return p.payload[:total], true, nil
		}
		r.pending[key] = p
		return nil, false, nil
	}

	p, ok := r.pending[key]
	if !ok {
		// Mid-sequence frame with no start; the head was lost or expired.
		return nil, false, fmt.Errorf("fastpacket: orphan frame pgn=%d seq=%d ctr=%d", f.Header.PGN, seq, ctr)
	}
	if ctr != p.nextCtr {
		delete(r.pending, key)
		return nil, false, fmt.Errorf("fastpacket: out-of-order frame pgn=%d got=%d want=%d", f.Header.PGN, ctr, p.nextCtr)
	}
	p.nextCtr++
	p.payload = append(p.payload, f.Data[1:]...)
	if len(p.payload) >= p.total {
		delete(r.pending, key)
		return p.payload[:p.total], true, nil
	}
	return nil, false, nil
}

// Sweep drops incomplete sequences older than the timeout and returns how
// many were discarded.
func (r *Reassembler) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, p := range r.pending {
		if now.Sub(p.startedAt) > r.timeout {
			delete(r.pending, key)
			n++
		}
	}
	return n
}

// Pending returns the number of in-flight sequences.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// SplitFastPacket produces the frame data bytes for an outbound payload,
// padding the final frame to 8 bytes with 0xFF per convention.
func SplitFastPacket(seq uint8, payload []byte) ([][]byte, error) {
	if len(payload) == 0 || len(payload) > FastPacketMaxPayload {
		return nil, fmt.Errorf("fastpacket: payload length %d", len(payload))
	}
	seq &= 0x7

	var frames [][]byte
	first := make([]byte, 0, 8)
	first = append(first, seq<<5, byte(len(payload)))
	n := len(payload)
	if n > 6 {
		n = 6
	}
	first = append(first, payload[:n]...)
	frames = append(frames, pad8(first))
	payload = payload[n:]

	ctr := uint8(1)
	for len(payload) > 0 {
		n = len(payload)
		if n > 7 {
			n = 7
		}
		frame := make([]byte, 0, 8)
		frame = append(frame, seq<<5|ctr)
		frame = append(frame, payload[:n]...)
		frames = append(frames, pad8(frame))
		payload = payload[n:]
		ctr++
	}
	return frames, nil
}

func pad8(b []byte) []byte {
	for len(b) < 8 {
		b = append(b, 0xFF)
	}
	return b
}
