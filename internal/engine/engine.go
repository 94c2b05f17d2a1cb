package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"tsprobe/internal/capture"
	"tsprobe/internal/telemetry"
	"tsprobe/internal/transport"
	"tsprobe/sink"
	"tsprobe/source"
)

type Engine struct {
	runID  string
	log    *slog.Logger
	stdout io.Writer

	transport  *transport.Server
	metrics    *telemetry.Metrics
	metricsSrv *telemetry.Server

	src      source.Adapter
	sink     sink.Adapter
	pipeline *capture.Pipeline
}

func (e *Engine) RunID() string { return e.runID }

// Run captures until the stream ends, processing fails or ctx is cancelled.
// The returned error is the pipeline's, or a failure to flush the output.
func (e *Engine) Run(ctx context.Context) error {
	if e.transport != nil {
		e.transport.SetServing(true)
	}
	start := time.Now()

	err := e.pipeline.Run(ctx)

	if e.transport != nil {
		e.transport.SetServing(false)
	}
	st := e.pipeline.Stats()
	e.log.Info("capture finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"buffers", st.Processed,
		"bytes", st.Bytes,
		"allocated", st.Allocated,
		"transient_reads", st.TransientReads,
		"snapshots", st.SnapshotsWritten,
	)
	return errors.Join(err, e.close())
}

func (e *Engine) Stats() capture.Stats { return e.pipeline.Stats() }

// close releases whatever Bootstrap opened; only the sink error is reported,
// as it may mean captured bytes were not flushed.
func (e *Engine) close() error {
	var sinkErr error
	if e.sink != nil {
		sinkErr = e.sink.Close()
		e.sink = nil
	}
	if e.src != nil {
		if err := e.src.Close(); err != nil {
			e.log.Warn("source close", "err", err)
		}
		e.src = nil
	}
	if e.transport != nil {
		e.transport.Stop()
		e.transport = nil
	}
	if e.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = e.metricsSrv.Close(ctx)
		cancel()
		e.metricsSrv = nil
	}
	return sinkErr
}
