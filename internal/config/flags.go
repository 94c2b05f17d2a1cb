package config

import (
	"fmt"
	"net"
	"time"

	"tsprobe/internal/decoder"
)

// Flags carries command-line values. A nil field was not given and leaves
// the file/env value alone.
type Flags struct {
	Debug   *string // -d error|warn|info|debug
	File    *string // -f path
	Address *string // -i host:port
	TCP     bool    // -t
	UDP     bool    // -u
	Output  *string // -o path, "-" for stdout
	Summary *string // -s mode, enables summaries

	SummaryFile   *string
	SummaryPeriod *int64 // milliseconds
}

func (c *Config) ApplyFlags(f Flags) error {
	if f.Debug != nil {
		c.Log.Level = *f.Debug
	}
	if f.File != nil {
		c.Source.Kind, c.Source.Path = "file", *f.File
	}
	if f.Address != nil {
		if _, _, err := net.SplitHostPort(*f.Address); err != nil {
			return fmt.Errorf("config: --ipaddress %q: %w", *f.Address, err)
		}
		c.Source.Address = *f.Address
		if c.Source.Kind != "tcp" {
			c.Source.Kind = "udp"
		}
	}
	switch {
	case f.TCP && f.UDP:
		return fmt.Errorf("config: --tcp and --udp are mutually exclusive")
	case f.TCP:
		c.Source.Kind = "tcp"
	case f.UDP:
		c.Source.Kind = "udp"
	}
	if f.Output != nil {
		if *f.Output == "-" {
			c.Output.Kind, c.Output.Path = "stdout", ""
		} else {
			c.Output.Kind, c.Output.Path = "file", *f.Output
		}
	}
	if f.Summary != nil {
		m, err := decoder.ParseMode(*f.Summary)
		if err != nil {
			return fmt.Errorf("config: --summary: %w", err)
		}
		c.Summary.Enabled, c.Summary.Mode = true, m.String()
	}
	if f.SummaryFile != nil {
		c.Summary.File = *f.SummaryFile
	}
	if f.SummaryPeriod != nil {
		if *f.SummaryPeriod <= 0 {
			return fmt.Errorf("config: --summary-period must be positive, got %d", *f.SummaryPeriod)
		}
		c.Summary.Period = time.Duration(*f.SummaryPeriod) * time.Millisecond
	}
	return nil
}
