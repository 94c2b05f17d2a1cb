// Package capture runs the capture-and-process pipeline: a producer
// goroutine reads the source into buffers and queues them; the caller's
// goroutine tees each buffer to the sink, feeds the decoder and drives
// periodic summary snapshots. Buffers travel between the two sides through
// a filled queue and come back through a free queue for reuse.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"tsprobe/internal/buffer"
	"tsprobe/internal/decoder"
	"tsprobe/internal/logging"
	"tsprobe/internal/queue"
	"tsprobe/internal/snapshot"
	"tsprobe/internal/telemetry"
	"tsprobe/source"
)

var (
	// ErrShortWrite is returned when the sink accepts fewer bytes than a
	// buffer holds.
	ErrShortWrite = errors.New("capture: short write to sink")
	ErrNoSource   = errors.New("capture: no source given")
	ErrNoDecoder  = errors.New("capture: no decoder given")
	errRunTwice   = errors.New("capture: pipeline already ran")
)

// Source yields (n > 0, nil) for data, io.EOF (or 0, nil) at end of stream
// and an error matching source.IsTransient when a retry may succeed.
type Source interface {
	Read(p []byte) (int, error)
}

type Sink interface {
	Write(p []byte) (int, error)
}

type SummaryOptions struct {
	Enabled bool
	// Path is the snapshot destination; empty prints to stdout.
	Path   string
	Period time.Duration
	Mode   decoder.Mode
	Stdout io.Writer
}

type Options struct {
	Source  Source
	Sink    Sink // optional
	Decoder decoder.Decoder
	Summary SummaryOptions

	// BufferSize is the capacity of newly allocated buffers.
	BufferSize int
	// Allocator defaults to an unlimited buffer.Budget.
	Allocator buffer.Allocator
	// RetryBackoff sleeps between transient reads; 0 retries at once.
	RetryBackoff time.Duration
	// JoinTimeout bounds the wait for a producer stuck in Read; 0 waits
	// forever.
	JoinTimeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Now is the snapshot clock; defaults to time.Now.
	Now func() time.Time
}

type Stats struct {
	Captured         uint64 `json:"buffers_captured" yaml:"buffers_captured"`
	Processed        uint64 `json:"buffers_processed" yaml:"buffers_processed"`
	Allocated        uint64 `json:"buffers_allocated" yaml:"buffers_allocated"`
	Bytes            uint64 `json:"bytes_captured" yaml:"bytes_captured"`
	TransientReads   uint64 `json:"transient_reads" yaml:"transient_reads"`
	SnapshotsWritten uint64 `json:"snapshots_written" yaml:"snapshots_written"`
	SnapshotsFailed  uint64 `json:"snapshots_failed" yaml:"snapshots_failed"`
}

type Pipeline struct {
	filled *queue.Queue[*buffer.Buffer]
	free   *queue.Queue[*buffer.Buffer]
	size   int
	alive  atomic.Bool
	ran    atomic.Bool

	src   Source
	sink  Sink
	dec   decoder.Decoder
	alloc buffer.Allocator
	snap  *snapshot.Scheduler
	mode  decoder.Mode
	now   func() time.Time

	backoff     time.Duration
	joinTimeout time.Duration

	log     *slog.Logger
	metrics *telemetry.Metrics

	captured, processed, allocated, bytes, transient atomic.Uint64
	snapWritten, snapFailed                          atomic.Uint64
}

func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Decoder == nil {
		return nil, ErrNoDecoder
	}
	if opts.BufferSize <= 0 {
		return nil, fmt.Errorf("capture: invalid buffer size %d", opts.BufferSize)
	}
	if opts.Allocator == nil {
		opts.Allocator = buffer.NewBudget(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	p := &Pipeline{
		filled:      queue.New[*buffer.Buffer](),
		free:        queue.New[*buffer.Buffer](),
		size:        opts.BufferSize,
		src:         opts.Source,
		sink:        opts.Sink,
		dec:         opts.Decoder,
		alloc:       opts.Allocator,
		mode:        opts.Summary.Mode,
		now:         opts.Now,
		backoff:     opts.RetryBackoff,
		joinTimeout: opts.JoinTimeout,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
	p.snap = snapshot.New(snapshot.Options{
		Path:    opts.Summary.Path,
		Period:  opts.Summary.Period,
		Enabled: opts.Summary.Enabled,
		Logger:  opts.Logger,
		Stdout:  opts.Summary.Stdout,
		Now:     opts.Now,
		Observe: p.observeSnapshot,
	})
	p.metrics.QueueDepth("filled", p.filled.Count)
	p.metrics.QueueDepth("free", p.free.Count)
	return p, nil
}

// Run captures and processes until the source ends, the consumer fails or
// ctx is cancelled, then tears the pipeline down. It returns nil after a
// clean drain and the consumer's error otherwise. Run may be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.ran.CompareAndSwap(false, true) {
		return errRunTwice
	}
	p.alive.Store(true)
	stop := context.AfterFunc(ctx, p.Stop)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.capture()
	}()

	err := p.process()

	p.alive.Store(false)
	p.join(done)
	p.filled.Wake()
	p.free.Wake()
	p.teardown()

	if err != nil {
		p.log.Error("error while processing", "err", err)
	}
	return err
}

// Stop asks both sides to finish. Data already captured is still processed.
func (p *Pipeline) Stop() {
	p.alive.Store(false)
	p.filled.Wake()
}

// Alive reports whether capture is still running.
func (p *Pipeline) Alive() bool { return p.alive.Load() }

func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured:         p.captured.Load(),
		Processed:        p.processed.Load(),
		Allocated:        p.allocated.Load(),
		Bytes:            p.bytes.Load(),
		TransientReads:   p.transient.Load(),
		SnapshotsWritten: p.snapWritten.Load(),
		SnapshotsFailed:  p.snapFailed.Load(),
	}
}

/*──────── producer ───────*/

func (p *Pipeline) capture() {
	defer func() {
		p.alive.Store(false)
		p.filled.Wake()
	}()

	for p.alive.Load() {
		b, err := p.acquire()
		if err != nil {
			p.log.Error("failed allocating capture buffer, capture stopped", "size", p.size, "err", err)
			return
		}

		n, err := p.src.Read(b.Space())
		if n > 0 {
			b.Stamp(n, buffer.Now())
			p.filled.Push(b)
			p.captured.Add(1)
			p.bytes.Add(uint64(n))
			p.metrics.Captured(n)
			if err == nil {
				continue
			}
			b = nil
		}
		if b != nil {
			p.recycle(b)
		}

		switch {
		case source.IsTransient(err):
			p.transient.Add(1)
			p.metrics.TransientRead()
			if p.backoff > 0 {
				time.Sleep(p.backoff)
			}
		case err == nil || errors.Is(err, io.EOF):
			p.log.Info("end of stream reached")
			return
		default:
			p.log.Error("source read failed, capture stopped", "err", err)
			return
		}
	}
}

// acquire prefers a recycled buffer. Only the producer pops the free queue,
// so a positive Count guarantees Pop does not block.
func (p *Pipeline) acquire() (*buffer.Buffer, error) {
	if p.free.Count() > 0 {
		if b, ok := p.free.Pop(); ok {
			return b, nil
		}
	}
	b, err := p.alloc.New(p.size)
	if err != nil {
		return nil, err
	}
	p.allocated.Add(1)
	p.metrics.Allocated()
	return b, nil
}

func (p *Pipeline) recycle(b *buffer.Buffer) {
	b.Reset()
	p.free.Push(b)
}

/*──────── consumer ───────*/

func (p *Pipeline) process() (err error) {
	var held *buffer.Buffer
	defer func() {
		if held != nil {
			p.alloc.Free(held)
		}
		if cerr := p.dec.Close(); cerr != nil {
			p.log.Warn("decoder release failed", "err", cerr)
		}
	}()

	for {
		if !p.alive.Load() && p.filled.Count() == 0 {
			return nil
		}
		b, ok := p.filled.Pop()
		if !ok {
			// woken while empty: spurious while alive, drained otherwise
			continue
		}
		held = b

		if p.sink != nil {
			if err := p.write(b); err != nil {
				return err
			}
		}
		if err := p.dec.Process(b.Bytes(), b.Timestamp()); err != nil {
			return fmt.Errorf("capture: decoder: %w", err)
		}
		p.snap.Check(p.now(), p.render)

		p.processed.Add(1)
		p.metrics.Processed()
		p.recycle(b)
		held = nil
	}
}

func (p *Pipeline) write(b *buffer.Buffer) error {
	n, err := p.sink.Write(b.Bytes())
	switch {
	case n < b.Len() && err != nil:
		return fmt.Errorf("%w: %d of %d bytes: %w", ErrShortWrite, n, b.Len(), err)
	case n < b.Len():
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, b.Len())
	case err != nil:
		return fmt.Errorf("capture: sink write: %w", err)
	}
	return nil
}

func (p *Pipeline) render(w io.Writer) error {
	return p.dec.Summarize(w, p.mode)
}

func (p *Pipeline) observeSnapshot(result string) {
	if result == snapshot.ResultWritten {
		p.snapWritten.Add(1)
	} else {
		p.snapFailed.Add(1)
	}
	p.metrics.Snapshot(result)
}

/*──────── shutdown ───────*/

func (p *Pipeline) join(done <-chan struct{}) {
	if p.joinTimeout <= 0 {
		<-done
		return
	}
	t := time.NewTimer(p.joinTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		p.log.Error("failed joining capture producer, continuing teardown", "timeout", p.joinTimeout)
	}
}

func (p *Pipeline) teardown() {
	for _, b := range p.filled.Drain() {
		p.alloc.Free(b)
	}
	for _, b := range p.free.Drain() {
		p.alloc.Free(b)
	}
}
