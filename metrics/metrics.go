// Package metrics records request and listener metrics.
//
// Components take a Recorder; NewNoop is used when metrics are disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request kinds.
const (
	KindStatic  = "static"
	KindDynamic = "dynamic"
)

// Request outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Recorder interface {
	RecordRequest(kind, outcome string, d time.Duration)
	SetListeners(n int)
	RecordReconcile(err error)
}

type noop struct{}

// NewNoop returns a Recorder that drops everything.
func NewNoop() Recorder {
	return noop{}
}

func (noop) RecordRequest(string, string, time.Duration) {}
func (noop) SetListeners(int)                            {}
func (noop) RecordReconcile(error)                       {}

type promRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	listeners       prometheus.Gauge
	reconcileTotal  *prometheus.CounterVec
}

// NewPrometheus registers the tftpboot collectors with reg.
func NewPrometheus(reg prometheus.Registerer) Recorder {
	return &promRecorder{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tftpboot_requests_total",
				Help: "Total number of TFTP read requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tftpboot_request_duration_seconds",
				Help:    "Time taken to produce a reader for a TFTP read request",
				Buckets: []float64{.001, .01, .1, .5, 1, 5},
			},
			[]string{"kind"},
		),
		listeners: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tftpboot_listeners",
				Help: "Number of addresses currently bound",
			},
		),
		reconcileTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tftpboot_reconcile_total",
				Help: "Total number of listener reconciliation passes by result",
			},
			[]string{"result"},
		),
	}
}

func (m *promRecorder) RecordRequest(kind, outcome string, d time.Duration) {
	m.requestsTotal.WithLabelValues(kind, outcome).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *promRecorder) SetListeners(n int) {
	m.listeners.Set(float64(n))
}

func (m *promRecorder) RecordReconcile(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileTotal.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	return mux
}
