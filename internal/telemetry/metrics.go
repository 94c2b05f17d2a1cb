// Package telemetry holds the Prometheus instruments of one capture run and
// serves them over HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"tsprobe/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tsprobe"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	reg *prometheus.Registry

	captured  prometheus.Counter
	processed prometheus.Counter
	allocated prometheus.Counter
	bytes     prometheus.Counter
	transient prometheus.Counter
	snapshots *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		captured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_captured_total",
			Help:      "Buffers filled by the producer and queued for processing.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_processed_total",
			Help:      "Buffers written to the sink and fed to the decoder.",
		}),
		allocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_allocated_total",
			Help:      "Buffers allocated because the free queue was empty.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_captured_total",
			Help:      "Bytes read from the source.",
		}),
		transient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_reads_total",
			Help:      "Source reads that returned nothing and were retried.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Summary snapshot attempts by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(m.captured, m.processed, m.allocated, m.bytes, m.transient, m.snapshots)
	m.reg.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Metrics) Captured(n int) {
	if m == nil {
		return
	}
	m.captured.Inc()
	m.bytes.Add(float64(n))
}

func (m *Metrics) Processed() {
	if m == nil {
		return
	}
	m.processed.Inc()
}

func (m *Metrics) Allocated() {
	if m == nil {
		return
	}
	m.allocated.Inc()
}

func (m *Metrics) TransientRead() {
	if m == nil {
		return
	}
	m.transient.Inc()
}

// Snapshot counts one summary attempt; result is written, failed or disabled.
func (m *Metrics) Snapshot(result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result).Inc()
}

// QueueDepth publishes fn as tsprobe_queue_depth{queue=name}.
func (m *Metrics) QueueDepth(name string, fn func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Buffers currently held by a work queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

/*──────── exposition ───────*/

// Server is the /metrics endpoint.
type Server struct {
	srv *http.Server
	lis net.Listener
}

// Expose starts serving /metrics on port in the background. Port 0 picks a
// free port; see Addr.
func Expose(port int, m *Metrics) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics: serve", "err", err)
		}
	}()
	logging.L().Info("metrics: listening", "addr", lis.Addr().String())
	return s, nil
}

func (s *Server) Addr() string { return s.lis.Addr().String() }

func (s *Server) Close(ctx context.Context) error { return s.srv.Shutdown(ctx) }
