// Package metrics collects session counters on a private prometheus
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements the live session recorder over prometheus
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	sessionSeconds  prometheus.Histogram
	framesSent      prometheus.Counter
	bytesOut        prometheus.Counter
	bytesIn         prometheus.Counter
	chunksDropped   prometheus.Counter
	interrupts      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "immortal", Subsystem: "live", Name: "sessions_started_total",
			Help: "Sessions that reached Connected.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "immortal", Subsystem: "live", Name: "sessions_active",
			Help: "Sessions currently connected.",
		}),
		sessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "immortal", Subsystem: "live", Name: "session_duration_seconds",
			Help:    "Connected time per session.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "immortal", Subsystem: "live", Name: "frames_sent_total",
			Help: "Microphone frames sent.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "immortal", Subsystem: "live", Name: "audio_bytes_out_total",
			Help: "Raw microphone bytes sent.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "immortal", Subsystem: "live", Name: "audio_bytes_in_total",
			Help: "Decoded persona audio bytes scheduled.",
		}),
		chunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "immortal", Subsystem: "live", Name: "chunks_dropped_total",
			Help: "Inbound chunks dropped for decode failures.",
		}),
		interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "immortal", Subsystem: "live", Name: "interrupts_total",
			Help: "Barge-in interrupts received.",
		}),
	}
	m.registry.MustRegister(
		m.sessionsStarted, m.sessionsActive, m.sessionSeconds,
		m.framesSent, m.bytesOut, m.bytesIn,
		m.chunksDropped, m.interrupts,
	)
	return m
}

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded(d time.Duration) {
	m.sessionsActive.Dec()
	m.sessionSeconds.Observe(d.Seconds())
}

func (m *Metrics) FrameSent(bytes int) {
	m.framesSent.Inc()
	m.bytesOut.Add(float64(bytes))
}

func (m *Metrics) ChunkReceived(bytes int) {
	m.bytesIn.Add(float64(bytes))
}

func (m *Metrics) ChunkDropped() {
	m.chunksDropped.Inc()
}

func (m *Metrics) Interrupted() {
	m.interrupts.Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
