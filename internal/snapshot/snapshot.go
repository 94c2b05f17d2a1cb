// Package snapshot periodically persists a rendered report to a fixed path.
// The report is written next to the destination and renamed over it, so a
// reader of the destination only ever sees a complete file.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/oxtoacart/bpool"
)

// TempSuffix is appended to the destination to name the file being written.
const TempSuffix = ".part"

// Result labels passed to Options.Observe.
const (
	ResultWritten  = "written"
	ResultFailed   = "failed"
	ResultDisabled = "disabled"
)

type RenderFunc func(io.Writer) error

type Options struct {
	// Path is the destination. Empty renders to Stdout instead.
	Path    string
	Period  time.Duration
	Enabled bool
	Logger  *slog.Logger
	Stdout  io.Writer
	// Now defaults to time.Now.
	Now     func() time.Time
	Observe func(result string)
}

type Scheduler struct {
	path     string
	tmp      string
	period   time.Duration
	enabled  bool
	deadline time.Time

	log     *slog.Logger
	stdout  io.Writer
	pool    *bpool.BufferPool
	now     func() time.Time
	observe func(string)
}

func New(opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Observe == nil {
		opts.Observe = func(string) {}
	}
	s := &Scheduler{
		path:    opts.Path,
		period:  opts.Period,
		enabled: opts.Enabled,
		log:     opts.Logger,
		stdout:  opts.Stdout,
		pool:    bpool.NewBufferPool(2),
		now:     opts.Now,
		observe: opts.Observe,
	}
	if s.path != "" {
		s.tmp = s.path + TempSuffix
	}
	if s.enabled {
		s.deadline = s.now().Add(s.period)
	}
	return s
}

func (s *Scheduler) Enabled() bool       { return s.enabled }
func (s *Scheduler) Deadline() time.Time { return s.deadline }

// Check writes a snapshot when the deadline has passed and reports whether
// one was written. Missed deadlines are not queued: the next deadline is
// always counted from the end of this attempt.
func (s *Scheduler) Check(now time.Time, render RenderFunc) bool {
	if !s.enabled || now.Before(s.deadline) {
		return false
	}
	ok := s.write(render)
	s.deadline = s.now().Add(s.period)
	return ok
}

func (s *Scheduler) write(render RenderFunc) bool {
	if s.path == "" {
		if err := s.emit(render); err != nil {
			s.fail("summary render failed", err)
			return false
		}
		s.succeed()
		return true
	}

	f, err := os.OpenFile(s.tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.log.Error("failed opening summary file, disabling summary output", "path", s.tmp, "err", err)
		s.enabled = false
		s.observe(ResultDisabled)
		return false
	}
	if err := writeFile(f, s.tmp, s.path, render); err != nil {
		s.fail("summary write failed", err)
		return false
	}
	s.succeed()
	return true
}

// emit renders into a pooled buffer and hands it to stdout in one write, so a
// failed render prints nothing.
func (s *Scheduler) emit(render RenderFunc) error {
	buf := s.pool.Get()
	defer s.pool.Put(buf)
	if err := render(buf); err != nil {
		return err
	}
	_, err := s.stdout.Write(buf.Bytes())
	return err
}

func (s *Scheduler) succeed() {
	s.observe(ResultWritten)
}

func (s *Scheduler) fail(msg string, err error) {
	s.log.Warn(msg, "path", s.path, "err", err)
	s.observe(ResultFailed)
}

// writeFile renders into f, which must be open on tmp, then renames tmp over
// dst. On any error tmp is removed and dst is left untouched.
func writeFile(f *os.File, tmp, dst string, render RenderFunc) (err error) {
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	bw := bufio.NewWriter(f)
	if err = render(bw); err != nil {
		_ = f.Close()
		return fmt.Errorf("render: %w", err)
	}
	if err = bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
