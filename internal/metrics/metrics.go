// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wirerelay"

// Drop reasons reported by DeliveryDropped.
const (
	ReasonQueueFull = "queue_full"
	ReasonClosed    = "closed"
)

// Metrics holds the relay collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	members      prometheus.Gauge
	connections  prometheus.Counter
	broadcasts   *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	chatMessages *prometheus.CounterVec
	decodeErrors prometheus.Counter
}

// New registers the relay collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the relay collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		members: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Number of members currently in the registry",
		}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of connections admitted",
		}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts by event type",
		}, []string{"type"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Per-recipient deliveries skipped during broadcast",
		}, []string{"reason"}),
		chatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Inbound chat messages relayed, by envelope kind",
		}, []string{"kind"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound payloads dropped because they could not be decoded",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MemberJoined counts an admitted connection and raises the member gauge.
func (m *Metrics) MemberJoined() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.members.Inc()
}

// MemberLeft lowers the member gauge.
func (m *Metrics) MemberLeft() {
	if m == nil {
		return
	}
	m.members.Dec()
}

// Broadcast counts one fan-out of the given event type.
func (m *Metrics) Broadcast(eventType string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(eventType).Inc()
}

// DeliveryDropped counts one recipient skipped during a broadcast.
func (m *Metrics) DeliveryDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// ChatRelayed counts one inbound chat line; legacy marks plain-text senders.
func (m *Metrics) ChatRelayed(legacy bool) {
	if m == nil {
		return
	}
	kind := "envelope"
	if legacy {
		kind = "plain_text"
	}
	m.chatMessages.WithLabelValues(kind).Inc()
}

// DecodeFailed counts one inbound payload dropped as undecodable.
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}
