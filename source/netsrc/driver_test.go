package netsrc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"tsprobe/source"
)

func TestUDPSource_ReceivesDatagramsAndTimesOut(t *testing.T) {
	d := &udpDriver{}
	if err := d.Configure(Config{Address: "127.0.0.1:0", ReadTimeout: 20 * time.Millisecond}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer d.Close()

	p := make([]byte, 7*188)
	if _, err := d.Read(p); !source.IsTransient(err) {
		t.Fatalf("idle read: want transient error, got %v", err)
	}

	tx, err := net.DialUDP("udp", nil, d.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tx.Close()
	payload := bytes.Repeat([]byte{0x47}, 188)
	if _, err := tx.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := d.Read(p)
		if source.IsTransient(err) {
			continue
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n != 188 {
			t.Fatalf("want 188 bytes, got %d", n)
		}
		return
	}
	t.Fatal("datagram never arrived")
}

func TestTCPSource_StreamsThenEOF(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	want := bytes.Repeat([]byte{0x47, 0, 0x11, 0x10}, 470)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = c.Write(want)
		_ = c.Close()
	}()

	a, err := source.NewAdapter("tcp")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Configure(Config{Address: ln.Addr().String()}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer a.Close()

	var got []byte
	p := make([]byte, 1316)
	for {
		n, err := a.Read(p)
		if err == io.EOF {
			break
		}
		if source.IsTransient(err) {
			continue
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, p[:n]...)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
}

func TestConfigure_RejectsWrongType(t *testing.T) {
	if err := (&udpDriver{}).Configure(struct{}{}); err == nil {
		t.Fatal("udp: expected type error")
	}
	if err := (&tcpDriver{}).Configure("x"); err == nil {
		t.Fatal("tcp: expected type error")
	}
}

func TestTCPSource_DialHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, err := source.Open(ctx, "tcp", Config{Address: ln.Addr().String()})
	if err == nil {
		a.Close()
		t.Fatal("expected dial to fail on a cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
