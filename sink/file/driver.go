// Package file writes captured bytes to a new local file.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"tsprobe/sink"
)

type Config struct {
	Path string `koanf:"path" yaml:"path"`
	// Mode is the permission of the created file; 0 means 0644.
	Mode fs.FileMode `koanf:"mode" yaml:"mode"`
}

type driver struct {
	f *os.File
}

// Configure creates the output file. An existing file is never truncated.
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("file-sink: expected Config, got %T", raw)
	}
	if c.Path == "" {
		return errors.New("file-sink: no path given")
	}
	if c.Mode == 0 {
		c.Mode = 0o644
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, c.Mode)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("file-sink: %s: %w", c.Path, sink.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("file-sink: %w", err)
	}
	d.f = f
	return nil
}

func (d *driver) Write(p []byte) (int, error) { return d.f.Write(p) }

func (d *driver) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func init() {
	sink.Register("file", func() sink.Adapter { return &driver{} })
}
