package core

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"rd3/pkg/domain"
)

// TextExporter is implemented by recorders that can render themselves in
// the Prometheus text format.
type TextExporter interface {
	WriteText(w io.Writer) error
}

// Metrics records run measurements in a private Prometheus registry that is
// rendered into the run artifacts, not served.
type Metrics struct {
	reg      *prometheus.Registry
	phases   *prometheus.GaugeVec
	triaged  *prometheus.CounterVec
	written  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	requests *prometheus.CounterVec
}

var _ MetricsRecorder = (*Metrics)(nil)

// NewMetrics builds a recorder with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		phases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rd3_phase_duration_seconds",
			Help: "Duration of the last execution of a run phase.",
		}, []string{"phase", "result"}),
		triaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rd3_triage_rows_total",
			Help: "Staging rows triaged, by stream and outcome.",
		}, []string{"stream", "outcome"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rd3_rows_written_total",
			Help: "Rows written to the catalog, by table.",
		}, []string{"table"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rd3_failed_chunks_total",
			Help: "Write chunks rejected by the catalog, by table.",
		}, []string{"table"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rd3_backend_requests_total",
			Help: "Catalog requests, by method and status code (0 for transport failures).",
		}, []string{"method", "status"}),
	}
	m.reg.MustRegister(m.phases, m.triaged, m.written, m.failed, m.requests)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Observe(_ context.Context, phase string, success bool, d time.Duration) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.phases.WithLabelValues(phase, result).Set(d.Seconds())
}

func (m *Metrics) Triaged(stream, outcome string, n int) {
	m.triaged.WithLabelValues(stream, outcome).Add(float64(n))
}

func (m *Metrics) Written(table domain.Table, n int) {
	m.written.WithLabelValues(string(table)).Add(float64(n))
}

func (m *Metrics) FailedChunks(table domain.Table, n int) {
	m.failed.WithLabelValues(string(table)).Add(float64(n))
}

// ObserveRequest counts one catalog request. It matches the gateway's
// request hook.
func (m *Metrics) ObserveRequest(method string, status int) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// WriteText renders every metric family in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
