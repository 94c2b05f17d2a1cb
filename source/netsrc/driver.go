// Package netsrc receives a transport stream over UDP (unicast or multicast)
// or TCP.
package netsrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"tsprobe/source"
)

const (
	defaultReadTimeout = 100 * time.Millisecond
	dialTimeout        = 5 * time.Second
)

type Config struct {
	// Address is host:port. For udp it is the local bind address, joined as a
	// group when the host is a multicast IP; for tcp it is the peer to dial.
	Address     string        `koanf:"address" yaml:"address"`
	ReadTimeout time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	// ReadBuffer sets the socket receive buffer when > 0.
	ReadBuffer int `koanf:"read_buffer" yaml:"read_buffer"`
}

func (c Config) timeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return c.ReadTimeout
}

/*──────── udp ───────*/

type udpDriver struct {
	cfg  Config
	conn *net.UDPConn
}

func (d *udpDriver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("udp-source: expected Config, got %T", raw)
	}
	addr, err := net.ResolveUDPAddr("udp", c.Address)
	if err != nil {
		return fmt.Errorf("udp-source: %w", err)
	}
	if addr.IP != nil && addr.IP.IsMulticast() {
		d.conn, err = net.ListenMulticastUDP("udp", nil, addr)
	} else {
		d.conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return fmt.Errorf("udp-source: listen %s: %w", c.Address, err)
	}
	if c.ReadBuffer > 0 {
		if err := d.conn.SetReadBuffer(c.ReadBuffer); err != nil {
			_ = d.conn.Close()
			return fmt.Errorf("udp-source: read buffer: %w", err)
		}
	}
	d.cfg = c
	return nil
}

// Read returns one datagram; a datagram larger than p is truncated.
func (d *udpDriver) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.cfg.timeout())); err != nil {
		return 0, err
	}
	n, _, err := d.conn.ReadFromUDP(p)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, source.ErrTransient
	}
	if errors.Is(err, net.ErrClosed) {
		return 0, io.EOF
	}
	return 0, err
}

func (d *udpDriver) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

/*──────── tcp ───────*/

type tcpDriver struct {
	cfg  Config
	conn net.Conn
}

func (d *tcpDriver) Configure(raw any) error {
	return d.ConfigureContext(context.Background(), raw)
}

// ConfigureContext dials the peer, giving up when ctx is done or after
// dialTimeout.
func (d *tcpDriver) ConfigureContext(ctx context.Context, raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("tcp-source: expected Config, got %T", raw)
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return fmt.Errorf("tcp-source: dial %s: %w", c.Address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok && c.ReadBuffer > 0 {
		_ = tc.SetReadBuffer(c.ReadBuffer)
	}
	d.cfg, d.conn = c, conn
	return nil
}

func (d *tcpDriver) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.cfg.timeout())); err != nil {
		return 0, err
	}
	n, err := d.conn.Read(p)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, source.ErrTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return 0, io.EOF
	}
	return 0, err
}

func (d *tcpDriver) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func init() {
	source.Register("udp", func() source.Adapter { return &udpDriver{} })
	source.Register("tcp", func() source.Adapter { return &tcpDriver{} })
}
