package pubsub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus collectors of a Hub, all labelled by topic.
type Metrics struct {
	subscribers *prometheus.GaugeVec
	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	filtered    *prometheus.CounterVec
}

// NewMetrics creates the hub collectors and registers them with reg.
// With a nil reg they are created but not registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		subscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wtfgram",
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Number of live subscriptions.",
		}, []string{"topic"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wtfgram",
			Subsystem: "hub",
			Name:      "published_total",
			Help:      "Messages published.",
		}, []string{"topic"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wtfgram",
			Subsystem: "hub",
			Name:      "delivered_total",
			Help:      "Messages queued for a subscriber.",
		}, []string{"topic"}),
		filtered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wtfgram",
			Subsystem: "hub",
			Name:      "filtered_total",
			Help:      "Messages skipped for a subscriber outside their audience.",
		}, []string{"topic"}),
	}
}
