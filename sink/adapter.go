// Package sink defines where the capture pipeline writes raw buffer bytes,
// and a registry of drivers by kind.
package sink

import (
	"errors"
	"fmt"
	"sort"
)

// ErrExists is returned by drivers that refuse to overwrite existing output.
var ErrExists = errors.New("sink: output already exists")

// Adapter is the common behaviour every sink exposes. Write follows
// io.Writer: n < len(p) always comes with a non-nil error.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	Write(p []byte) (int, error)
	Close() error // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q (have %v)", name, Kinds())
}

func Kinds() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
