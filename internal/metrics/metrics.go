// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

type Relay struct {
	Rooms         prometheus.Gauge
	Peers         prometheus.Gauge
	Messages      *prometheus.CounterVec
	Dropped       prometheus.Counter
	Kicked        prometheus.Counter
	TokensIssued  prometheus.Counter
	JoinsRejected *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewRelay registers the relay collectors plus the Go runtime ones on a private registry.
func NewRelay() *Relay {
	reg := prometheus.NewRegistry()
	m := &Relay{
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms", Help: "Rooms with at least one member.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "peers", Help: "Connected signaling peers.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signal_messages_total", Help: "Signaling messages received, by type.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total", Help: "Frames dropped on full send queues.",
		}),
		Kicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "peers_kicked_total", Help: "Peers disconnected for backpressure.",
		}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tokens_issued_total", Help: "Join credentials issued.",
		}),
		JoinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "joins_rejected_total", Help: "Websocket joins refused, by reason.",
		}, []string{"reason"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.Rooms, m.Peers, m.Messages, m.Dropped, m.Kicked, m.TokensIssued, m.JoinsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Relay) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
