package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// UDPSource owns the NMEA2000 datagram socket. The same socket carries
// inbound PGN frames and outbound command frames: replies go to the gateway
// address the last inbound datagram came from.
type UDPSource struct {
	cfg Config

	mu   sync.Mutex
	conn *net.UDPConn
	peer *net.UDPAddr

	state atomic.Int32
}

func NewUDPSource(cfg Config) (*UDPSource, error) {
	if err := cfg.fillDefaults(1024); err != nil {
		return nil, err
	}
	return &UDPSource{cfg: cfg}, nil
}

func (u *UDPSource) Name() string { return u.cfg.Name }

func (u *UDPSource) State() LinkState { return LinkState(u.state.Load()) }

func (u *UDPSource) Connect(ctx context.Context) error {
	if u == nil {
		return ErrNotConnected
	}
	u.mu.Lock()
	if u.conn != nil {
		u.mu.Unlock()
		return nil
	}
	u.mu.Unlock()

	u.state.Store(int32(LinkConnecting))
	addr, err := net.ResolveUDPAddr("udp", u.cfg.Addr)
	if err != nil {
		u.state.Store(int32(LinkDown))
		return fmt.Errorf("resolve %s: %w", u.cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		u.state.Store(int32(LinkDown))
		return fmt.Errorf("listen udp %s: %w", u.cfg.Addr, err)
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	u.state.Store(int32(LinkUp))
	return nil
}

func (u *UDPSource) NextFrame(ctx context.Context) (RawFrame, error) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return RawFrame{}, ErrNotConnected
	}

	deadline := time.Now().Add(u.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, u.cfg.MaxFrameBytes+1)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return RawFrame{}, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return RawFrame{}, ErrNotConnected
		}
		if ctx.Err() != nil {
			return RawFrame{}, ctx.Err()
		}
		return RawFrame{}, fmt.Errorf("%w: %s", ErrPeerClosed, err)
	}
	if n == 0 || n > u.cfg.MaxFrameBytes {
		return RawFrame{}, ErrMalformed
	}

	u.mu.Lock()
	u.peer = from
	u.mu.Unlock()

	return RawFrame{
		Payload:    append([]byte(nil), buf[:n]...),
		ReceivedAt: time.Now().UTC(),
		Source:     u.cfg.Name,
	}, nil
}

// Send writes one datagram to the gateway. Until a first inbound datagram
// identifies the peer there is nowhere to send, which reads as link loss to
// the command path.
func (u *UDPSource) Send(ctx context.Context, payload []byte) error {
	u.mu.Lock()
	conn := u.conn
	peer := u.peer
	u.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if peer == nil {
		return fmt.Errorf("%w: no peer yet", ErrNotConnected)
	}
	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(d)
	}
	if _, err := conn.WriteToUDP(payload, peer); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (u *UDPSource) Disconnect() error {
	u.mu.Lock()
	conn := u.conn
	u.conn = nil
	u.peer = nil
	u.mu.Unlock()
	u.state.Store(int32(LinkDown))
	if conn == nil {
		return nil
	}
	return conn.Close()
}
