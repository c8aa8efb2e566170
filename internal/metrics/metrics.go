// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_connections",
		Help: "Number of open websocket connections.",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chathub_online_users",
		Help: "Number of usernames bound to a live connection.",
	})

	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_events_total",
		Help: "Inbound events handled, by type.",
	}, []string{"type"})

	Dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_events_dropped_total",
		Help: "Inbound events dropped before handling or outbound frames dropped on full buffers.",
	}, []string{"reason"})

	FanoutFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chathub_fanout_frames_total",
		Help: "Outbound frames enqueued to connections.",
	})

	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_store_errors_total",
		Help: "Message store failures, by operation.",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(Connections)
	prometheus.MustRegister(OnlineUsers)
	prometheus.MustRegister(Events)
	prometheus.MustRegister(Dropped)
	prometheus.MustRegister(FanoutFrames)
	prometheus.MustRegister(StoreErrors)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
