// Package file reads a transport stream from a local file or stdin.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"

	"tsprobe/source"
)

type Config struct {
	// Path of the file to read; "-" reads stdin.
	Path string `koanf:"path" yaml:"path"`
}

type driver struct {
	cfg Config
	f   *os.File
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("file-source: expected Config, got %T", raw)
	}
	if c.Path == "" {
		return errors.New("file-source: no path given")
	}
	d.cfg = c
	if c.Path == "-" {
		d.f = os.Stdin
		return nil
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("file-source: %w", err)
	}
	d.f = f
	return nil
}

func (d *driver) Read(p []byte) (int, error) {
	n, err := d.f.Read(p)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, source.ErrTransient
	}
	if errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return 0, err
}

func (d *driver) Close() error {
	if d.f == nil || d.f == os.Stdin {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func init() {
	source.Register("file", func() source.Adapter { return &driver{} })
}
