// Package metrics exposes chat activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/transport"
)

const namespace = "linechat"

// Metrics holds every collector on a private registry. It implements
// core.Observer and transport.Observer.
type Metrics struct {
	registry *prometheus.Registry

	connections     prometheus.Counter
	connectionsOpen prometheus.Gauge
	authAttempts    *prometheus.CounterVec
	rateLimited     prometheus.Counter

	sessions   prometheus.Gauge
	channels   prometheus.Gauge
	dispatched *prometheus.CounterVec
	delivered  prometheus.Counter
	dropped    prometheus.Counter
}

var (
	_ core.Observer      = (*Metrics)(nil)
	_ transport.Observer = (*Metrics)(nil)
)

// New registers the chat collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections accepted on any listener.",
		}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Connections currently open, authenticated or not.",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Handshake attempts by mode and result.",
		}, []string{"mode", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_lines_total",
			Help:      "Lines discarded by the per-connection rate limit.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Logged-in sessions.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels with at least one member.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dispatched_total",
			Help:      "Client lines handled, by command or kind.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_delivered_total",
			Help:      "Lines queued to recipients by broadcasts and whispers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipients_dropped_total",
			Help:      "Sessions disconnected because a send to them failed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.connectionsOpen,
		m.authAttempts,
		m.rateLimited,
		m.sessions,
		m.channels,
		m.dispatched,
		m.delivered,
		m.dropped,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Inc()
	m.connectionsOpen.Inc()
}

func (m *Metrics) ConnectionClosed() { m.connectionsOpen.Dec() }

func (m *Metrics) AuthAttempt(mode string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.authAttempts.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) RateLimited() { m.rateLimited.Inc() }

func (m *Metrics) SessionOpened()         { m.sessions.Inc() }
func (m *Metrics) SessionClosed()         { m.sessions.Dec() }
func (m *Metrics) ChannelCreated()        { m.channels.Inc() }
func (m *Metrics) ChannelRemoved()        { m.channels.Dec() }
func (m *Metrics) Delivered(n int)        { m.delivered.Add(float64(n)) }
func (m *Metrics) Dropped()               { m.dropped.Inc() }
func (m *Metrics) Dispatched(kind string) { m.dispatched.WithLabelValues(kind).Inc() }
