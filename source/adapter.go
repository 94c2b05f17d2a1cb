// Package source defines the byte-stream capability the capture pipeline
// reads from, and a registry of drivers by transport kind.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"syscall"
)

// ErrTransient marks a read that produced nothing but may succeed if retried.
var ErrTransient = errors.New("source: transient read failure")

// Adapter is what every source driver exposes. Read follows io.Reader with a
// narrower contract: (n > 0, nil) for data, (0, io.EOF) at end of stream,
// and (0, err) with IsTransient(err) when nothing was available yet.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	Read(p []byte) (int, error)
	Close() error
}

// ContextConfigurer is implemented by drivers whose setup blocks (dialing a
// peer) and should give up when ctx is done.
type ContextConfigurer interface {
	ConfigureContext(ctx context.Context, cfg any) error
}

// Open builds the driver for kind and configures it with cfg.
func Open(ctx context.Context, kind string, cfg any) (Adapter, error) {
	a, err := NewAdapter(kind)
	if err != nil {
		return nil, err
	}
	if cc, ok := a.(ContextConfigurer); ok {
		err = cc.ConfigureContext(ctx, cfg)
	} else {
		err = a.Configure(cfg)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// IsTransient reports whether a read error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

/*──────── registry ───────*/

// Factory builds an unconfigured Adapter.
type Factory func() Adapter

var registry = map[string]Factory{}

// Register is called from each driver's init().
func Register(kind string, f Factory) {
	registry[kind] = f
}

// NewAdapter returns a driver by kind ("file", "udp", "tcp", "kafka").
func NewAdapter(kind string) (Adapter, error) {
	if f, ok := registry[kind]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported kind %q (have %v)", kind, Kinds())
}

// Kinds lists the registered drivers.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
