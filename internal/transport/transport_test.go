package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestTCPSourceReadsLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("$SDDPT,12.4,0.5,*6D\r\n$HCHDG,101.1,,,7.1,W*3C\r\n"))
		time.Sleep(200 * time.Millisecond)
	}()

	src, err := NewTCPSource(Config{Name: "nmea0183", Addr: ln.Addr().String(), ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer src.Disconnect()

	if got := src.State(); got != LinkUp {
		t.Fatalf("state=%s want up", got)
	}

	f1, err := src.NextFrame(ctx)
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if string(f1.Payload) != "$SDDPT,12.4,0.5,*6D" {
		t.Fatalf("frame 1 payload %q", f1.Payload)
	}
	if f1.Source != "nmea0183" {
		t.Fatalf("frame 1 source %q", f1.Source)
	}

	f2, err := src.NextFrame(ctx)
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if string(f2.Payload) != "$HCHDG,101.1,,,7.1,W*3C" {
		t.Fatalf("frame 2 payload %q", f2.Payload)
	}
}

func TestTCPSourceTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, _ := ln.Accept()
		if conn != nil {
			defer conn.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	src, err := NewTCPSource(Config{Name: "nmea0183", Addr: ln.Addr().String(), ReadTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := src.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer src.Disconnect()

	_, err = src.NextFrame(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want ErrTimeout", err)
	}
}

func TestTCPSourcePeerClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, _ := ln.Accept()
		if conn != nil {
			conn.Close()
		}
	}()

	src, err := NewTCPSource(Config{Name: "nmea0183", Addr: ln.Addr().String(), ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := src.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer src.Disconnect()

	_, err = src.NextFrame(context.Background())
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("err=%v want ErrPeerClosed", err)
	}
}

func TestTCPDisconnectInvalidatesRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, _ := ln.Accept()
		if conn != nil {
			defer conn.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	src, err := NewTCPSource(Config{Name: "nmea0183", Addr: ln.Addr().String(), ReadTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := src.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := src.NextFrame(context.Background())
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	_ = src.Disconnect()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatalf("expected error after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatalf("read did not unblock after disconnect")
	}
	if got := src.State(); got != LinkDown {
		t.Fatalf("state=%s want down", got)
	}
}

func TestUDPSourceRoundTrip(t *testing.T) {
	src, err := NewUDPSource(Config{Name: "nmea2000", Addr: "127.0.0.1:0", ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := src.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer src.Disconnect()

	// Sending before any peer is known must fail as not-connected.
	if err := src.Send(context.Background(), []byte{0x01}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send without peer: %v", err)
	}

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("peer listen: %v", err)
	}
	defer peer.Close()

	local := src.conn.LocalAddr().(*net.UDPAddr)
	payload := []byte{0x09, 0xF1, 0x0D, 0x23, 0x01, 0x02}
	if _, err := peer.WriteToUDP(payload, local); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	frame, err := src.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("next frame: %v", err)
	}
	if string(frame.Payload) != string(payload) {
		t.Fatalf("payload mismatch: %x", frame.Payload)
	}

	// Outbound now goes back to the discovered peer.
	if err := src.Send(context.Background(), []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if n != 2 || buf[0] != 0xAA || buf[1] != 0xBB {
		t.Fatalf("peer got %x", buf[:n])
	}
}
