// Package metrics defines the instruments that bot components report their
// measurements into. The interface is deliberately tiny so components never
// depend on a concrete metrics backend.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// An Observer records a single named measurement.
type Observer interface {
	Observe(val float64, labels ...string)

	// For now we tightly couple to the prometheus collector type. The go
	// otel metrics sdk also has a prometheus adapter that implements this
	// interface.
	prometheus.Collector
}

// Metrics bundles all instruments of the bot.
type Metrics struct {
	MessagesCount      Observer // chat messages received from the platform
	SendLatency        Observer // outbound platform call latency, labeled by call kind
	TicksCount         Observer // pulse scope evaluations
	NotificationsCount Observer // pulse notifications delivered
	RotationsCount     Observer // pulse rotation steps applied
	EffectFailures     Observer // failed pulse effect calls, labeled by effect
}

// Collectors returns all instruments for registration in a prometheus
// registry.
func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesCount,
		m.SendLatency,
		m.TicksCount,
		m.NotificationsCount,
		m.RotationsCount,
		m.EffectFailures,
	}
}

// NewNop returns a Metrics whose observations are all discarded. It keeps
// components free of nil checks when no registry is configured.
func NewNop() Metrics {
	return Metrics{
		MessagesCount:      nopObserver{},
		SendLatency:        nopObserver{},
		TicksCount:         nopObserver{},
		NotificationsCount: nopObserver{},
		RotationsCount:     nopObserver{},
		EffectFailures:     nopObserver{},
	}
}

type nopObserver struct{}

func (nopObserver) Observe(float64, ...string)       {}
func (nopObserver) Describe(chan<- *prometheus.Desc) {}
func (nopObserver) Collect(chan<- prometheus.Metric) {}
