// Package decoder defines the boundary between the capture pipeline and the
// stream analyzer. The pipeline feeds timestamped chunks through Process and
// asks for a rendered report through Summarize; it never looks inside.
package decoder

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrSyncLost reports a stream the decoder cannot lock onto.
var ErrSyncLost = errors.New("decoder: transport stream sync lost")

type Decoder interface {
	// Process consumes one chunk captured at ts. The slice is only valid for
	// the duration of the call.
	Process(data []byte, ts time.Duration) error
	Summarize(w io.Writer, mode Mode) error
	Close() error
}

type Mode int

const (
	Bandwidth Mode = iota // bandwidth per elementary stream
	Table                 // tables and descriptors
	Packet                // decoded packet headers
	Wire                  // arrival time per packet
)

var modeNames = []string{"bandwidth", "table", "packet", "wire"}

func (m Mode) String() string {
	if int(m) >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts a mode name or any string starting with one. An empty
// string selects Bandwidth.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Bandwidth, nil
	}
	for i, name := range modeNames {
		if strings.HasPrefix(s, name) {
			return Mode(i), nil
		}
	}
	return Bandwidth, fmt.Errorf("decoder: unknown summary mode %q (want one of %s)", s, strings.Join(modeNames, ", "))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Format selects how a summary is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return FormatText, fmt.Errorf("decoder: unknown summary format %q", s)
	}
}
