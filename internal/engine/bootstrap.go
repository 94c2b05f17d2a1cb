package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"tsprobe/internal/buffer"
	"tsprobe/internal/capture"
	"tsprobe/internal/config"
	"tsprobe/internal/decoder"
	"tsprobe/internal/decoder/ts"
	"tsprobe/internal/logging"
	"tsprobe/internal/telemetry"
	"tsprobe/internal/transport"
	"tsprobe/sink"
	sinkfile "tsprobe/sink/file"
	"tsprobe/sink/stdout"
	"tsprobe/source"
	srcfile "tsprobe/source/file"
	"tsprobe/source/netsrc"

	// registered for their kind
	_ "tsprobe/sink/kafka"
	_ "tsprobe/source/kafka"
)

type Option func(*Engine)

// WithStdout redirects summaries that have no file configured.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// Bootstrap opens everything a run needs. On error nothing is left open.
func Bootstrap(ctx context.Context, cfg config.Config, opts ...Option) (_ *Engine, err error) {
	e := &Engine{runID: uuid.NewString(), stdout: os.Stdout}
	for _, o := range opts {
		o(e)
	}
	e.log = logging.L().With("run_id", e.runID)
	defer func() {
		if err != nil {
			e.close()
		}
	}()

	// 1. metrics
	e.metrics = telemetry.New()
	if cfg.Server.MetricsPort > 0 {
		if e.metricsSrv, err = telemetry.Expose(cfg.Server.MetricsPort, e.metrics); err != nil {
			return nil, err
		}
	}

	// 2. transport server
	if cfg.Server.GRPCPort > 0 {
		if e.transport, err = transport.StartServer(cfg.Server.GRPCPort); err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		go func() {
			if err := e.transport.Serve(); err != nil {
				e.log.Error("transport: serve", "err", err)
			}
		}()
	}

	// 3. source and sink
	if e.src, err = openSource(ctx, cfg.Source); err != nil {
		return nil, err
	}
	if cfg.Output.Kind != "" {
		if e.sink, err = openSink(cfg.Output); err != nil {
			return nil, err
		}
	}

	// 4. decoder and pipeline
	mode, _ := decoder.ParseMode(cfg.Summary.Mode)
	format, _ := decoder.ParseFormat(cfg.Summary.Format)
	dec := ts.New(ts.Options{
		Level:   logging.DecoderLevel(cfg.Log.Level),
		Logger:  e.log,
		Format:  format,
		Label:   e.runID,
		History: cfg.Summary.History,
	})
	copts := capture.Options{
		Source:  e.src,
		Decoder: dec,
		Summary: capture.SummaryOptions{
			Enabled: cfg.Summary.Enabled,
			Path:    cfg.Summary.File,
			Period:  cfg.Summary.Period,
			Mode:    mode,
			Stdout:  e.stdout,
		},
		BufferSize:   cfg.Capture.BufferSize,
		Allocator:    buffer.NewBudget(cfg.Capture.MemoryLimit),
		RetryBackoff: cfg.Capture.RetryBackoff,
		JoinTimeout:  cfg.Capture.JoinTimeout,
		Logger:       e.log,
		Metrics:      e.metrics,
	}
	if e.sink != nil {
		copts.Sink = e.sink
	}
	if e.pipeline, err = capture.New(copts); err != nil {
		return nil, err
	}

	if cfg.Source.Kind == "file" {
		e.log.Info("examining", "input", cfg.Source.Path, "buffer_size", cfg.Capture.BufferSize)
	} else {
		e.log.Info("listening", "kind", cfg.Source.Kind, "address", cfg.Source.Address, "buffer_size", cfg.Capture.BufferSize)
	}
	return e, nil
}

func openSource(ctx context.Context, c config.SourceConfig) (source.Adapter, error) {
	var drv any
	switch c.Kind {
	case "file":
		drv = srcfile.Config{Path: c.Path}
	case "udp", "tcp":
		drv = netsrc.Config{Address: c.Address, ReadTimeout: c.ReadTimeout, ReadBuffer: c.ReadBuffer}
	default:
		drv = c.Kafka
	}
	a, err := source.Open(ctx, c.Kind, drv)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return a, nil
}

func openSink(c config.OutputConfig) (sink.Adapter, error) {
	var drv any
	switch c.Kind {
	case "file":
		drv = sinkfile.Config{Path: c.Path}
	case "stdout":
		drv = stdout.Config{BufferSize: 64 << 10}
	default:
		drv = c.Kafka
	}
	a, err := sink.NewAdapter(c.Kind)
	if err != nil {
		return nil, err
	}
	if err := a.Configure(drv); err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return a, nil
}
