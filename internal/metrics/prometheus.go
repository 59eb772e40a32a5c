package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom holds the real-time client instrumentation on a private registry,
// so independent clients (and tests) never collide on registration.
type Prom struct {
	reg *prometheus.Registry

	ConnectAttempts    prometheus.Counter
	ConnectErrors      prometheus.Counter
	ReconnectsSchedule prometheus.Counter
	Connected          prometheus.Gauge
	FramesReceived     *prometheus.CounterVec
	FramesDropped      *prometheus.CounterVec
	Sends              prometheus.Counter
	SendsDropped       prometheus.Counter
	PingRTT            prometheus.Histogram
	Refetches          *prometheus.CounterVec
}

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg:                reg,
		ConnectAttempts:    prometheus.NewCounter(prometheus.CounterOpts{Name: "pos_realtime_connect_attempts_total", Help: "Connection attempts started"}),
		ConnectErrors:      prometheus.NewCounter(prometheus.CounterOpts{Name: "pos_realtime_connect_errors_total", Help: "Connection attempts rejected or failed"}),
		ReconnectsSchedule: prometheus.NewCounter(prometheus.CounterOpts{Name: "pos_realtime_reconnects_scheduled_total", Help: "Backoff reconnects scheduled"}),
		Connected:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "pos_realtime_connected", Help: "1 while a session is connected"}),
		FramesReceived:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pos_realtime_frames_received_total", Help: "Frames received per topic"}, []string{"topic"}),
		FramesDropped:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pos_realtime_frames_dropped_total", Help: "Frames dropped after a parse failure"}, []string{"topic"}),
		Sends:              prometheus.NewCounter(prometheus.CounterOpts{Name: "pos_realtime_sends_total", Help: "Outbound messages written"}),
		SendsDropped:       prometheus.NewCounter(prometheus.CounterOpts{Name: "pos_realtime_sends_dropped_total", Help: "Outbound messages dropped while disconnected"}),
		PingRTT:            prometheus.NewHistogram(prometheus.HistogramOpts{Name: "pos_realtime_ping_rtt_ms", Help: "Ping to pong round trip in ms", Buckets: prometheus.ExponentialBuckets(5, 2, 10)}),
		Refetches:          prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pos_board_refetch_total", Help: "Gated refetch decisions"}, []string{"decision"}),
	}
	reg.MustRegister(p.ConnectAttempts, p.ConnectErrors, p.ReconnectsSchedule, p.Connected,
		p.FramesReceived, p.FramesDropped, p.Sends, p.SendsDropped, p.PingRTT, p.Refetches)
	return p
}

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

// Registry exposes the underlying registry for gathering.
func (p *Prom) Registry() *prometheus.Registry { return p.reg }
