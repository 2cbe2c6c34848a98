// Package transport abstracts the two wire feeds (TCP sentence stream, UDP
// datagram socket) behind one DataSource contract. Reconnection policy lives
// in the safety manager; a DataSource only knows how to dial, read, write
// and tear down one link.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout means no frame arrived within the read deadline. The link
	// is still up; callers use it to drive heartbeat checks.
	ErrTimeout = errors.New("transport: read timeout")
	// ErrPeerClosed means the remote side went away. Fatal for the link.
	ErrPeerClosed = errors.New("transport: peer closed")
	// ErrMalformed means one frame was unusable. Never fatal; the caller
	// forwards the raw bytes to the parser which isolates and drops them.
	ErrMalformed = errors.New("transport: malformed frame")
	// ErrNotConnected is returned for reads and writes on a closed link.
	ErrNotConnected = errors.New("transport: not connected")
)

type LinkState int32

const (
	LinkDown LinkState = iota
	LinkConnecting
	LinkUp
)

func (s LinkState) String() string {
	switch s {
	case LinkDown:
		return "down"
	case LinkConnecting:
		return "connecting"
	case LinkUp:
		return "up"
	default:
		return "unknown"
	}
}

// RawFrame is one wire frame as read, before any protocol parsing. Source is
// the transport id it arrived on, which also identifies the protocol.
type RawFrame struct {
	Payload    []byte
	ReceivedAt time.Time
	Source     string
}

// DataSource is the uniform capability both protocol links expose.
//
// NextFrame blocks until a frame, a read timeout, or link loss. A Disconnect
// from another goroutine invalidates an in-flight NextFrame, which then
// returns ErrNotConnected or ErrPeerClosed.
type DataSource interface {
	Connect(ctx context.Context) error
	NextFrame(ctx context.Context) (RawFrame, error)
	Send(ctx context.Context, payload []byte) error
	Disconnect() error
	Name() string
	State() LinkState
}

type Config struct {
	Name           string
	Addr           string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxFrameBytes  int
}

func (c *Config) fillDefaults(maxFrame int) error {
	if c.Name == "" {
		return errors.New("transport: name is required")
	}
	if c.Addr == "" {
		return errors.New("transport: addr is required")
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = maxFrame
	}
	return nil
}
