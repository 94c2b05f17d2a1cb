// Package stdout writes captured bytes to standard output.
package stdout

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"tsprobe/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	// BufferSize > 0 batches writes through a bufio.Writer of that size.
	BufferSize int `koanf:"buffer_size" yaml:"buffer_size"`
}

/* ────────── driver ────────── */
type driver struct {
	out io.Writer // os.Stdout unless a test swaps it
	bw  *bufio.Writer
	w   io.Writer
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if d.out == nil {
		d.out = os.Stdout
	}
	d.w = d.out
	if c.BufferSize > 0 {
		d.bw = bufio.NewWriterSize(d.out, c.BufferSize)
		d.w = d.bw
	}
	return nil
}

func (d *driver) Write(p []byte) (int, error) { return d.w.Write(p) }

// Close flushes pending bytes; stdout itself stays open.
func (d *driver) Close() error {
	if d.bw == nil {
		return nil
	}
	err := d.bw.Flush()
	d.bw = nil
	return err
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
