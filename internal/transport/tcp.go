package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TCPSource reads CRLF-terminated NMEA0183 sentences from a TCP stream.
type TCPSource struct {
	cfg Config

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	state atomic.Int32
}

func NewTCPSource(cfg Config) (*TCPSource, error) {
	if err := cfg.fillDefaults(4096); err != nil {
		return nil, err
	}
	return &TCPSource{cfg: cfg}, nil
}

func (t *TCPSource) Name() string { return t.cfg.Name }

func (t *TCPSource) State() LinkState { return LinkState(t.state.Load()) }

func (t *TCPSource) Connect(ctx context.Context) error {
	if t == nil {
		return ErrNotConnected
	}
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.state.Store(int32(LinkConnecting))
	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr)
	if err != nil {
		t.state.Store(int32(LinkDown))
		return fmt.Errorf("dial %s: %w", t.cfg.Addr, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.reader = bufio.NewReaderSize(conn, t.cfg.MaxFrameBytes)
	t.mu.Unlock()
	t.state.Store(int32(LinkUp))
	return nil
}

// NextFrame returns the next sentence line with CRLF stripped. A line larger
// than MaxFrameBytes yields ErrMalformed with the link intact.
func (t *TCPSource) NextFrame(ctx context.Context) (RawFrame, error) {
	t.mu.Lock()
	conn := t.conn
	reader := t.reader
	t.mu.Unlock()
	if conn == nil {
		return RawFrame{}, ErrNotConnected
	}

	deadline := time.Now().Add(t.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		if isTimeout(err) {
			return RawFrame{}, ErrTimeout
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return RawFrame{}, ErrPeerClosed
		}
		if ctx.Err() != nil {
			return RawFrame{}, ctx.Err()
		}
		return RawFrame{}, fmt.Errorf("%w: %s", ErrPeerClosed, err)
	}

	if len(line) > t.cfg.MaxFrameBytes {
		return RawFrame{}, ErrMalformed
	}
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return RawFrame{}, ErrMalformed
	}

	return RawFrame{
		Payload:    append([]byte(nil), line...),
		ReceivedAt: time.Now().UTC(),
		Source:     t.cfg.Name,
	}, nil
}

func (t *TCPSource) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(d)
	}
	_, err := conn.Write(payload)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Disconnect closes the link and unblocks any in-flight NextFrame.
func (t *TCPSource) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.reader = nil
	t.mu.Unlock()
	t.state.Store(int32(LinkDown))
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
