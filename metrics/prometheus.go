package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewPrometheus returns a Metrics backed by prometheus instruments under the
// "warden" namespace. The instruments are not registered anywhere yet; pass
// Collectors() to the registry behind your /metrics endpoint.
func NewPrometheus() Metrics {
	return Metrics{
		MessagesCount: NewPromCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "messages_received_total",
			Help:      "Chat messages received from the platform.",
		})),
		SendLatency: NewPromObserverVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "warden",
			Name:      "send_latency_seconds",
			Help:      "Latency of outbound platform calls.",
		}, []string{"call"})),
		TicksCount: NewPromCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "pulse",
			Name:      "ticks_total",
			Help:      "Scope evaluations performed by the engines.",
		})),
		NotificationsCount: NewPromCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "pulse",
			Name:      "notifications_total",
			Help:      "Cooldown notifications delivered.",
		})),
		RotationsCount: NewPromCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "pulse",
			Name:      "rotations_total",
			Help:      "Rotation items applied.",
		})),
		EffectFailures: NewPromCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "pulse",
			Name:      "effect_failures_total",
			Help:      "Failed engine effect calls.",
		}, []string{"effect"})),
	}
}

func NewPromCounter(m prometheus.Counter) Observer {
	return &PrometheusMetric{
		observe: func(val float64, labels ...string) {
			m.Add(val)
		},
		Collector: m,
	}
}

func NewPromGauge(m prometheus.Gauge) Observer {
	return &PrometheusMetric{
		observe: func(val float64, labels ...string) {
			m.Set(val)
		},
		Collector: m,
	}
}

func NewPromCounterVec(m *prometheus.CounterVec) Observer {
	return &PrometheusMetric{
		observe: func(val float64, labels ...string) {
			m.WithLabelValues(labels...).Add(val)
		},
		Collector: m,
	}
}

// for histogram or summary vecs
func NewPromObserverVec(m prometheus.ObserverVec) Observer {
	return &PrometheusMetric{
		observe: func(val float64, labels ...string) {
			m.WithLabelValues(labels...).Observe(val)
		},
		Collector: m,
	}
}

func NewPromHistogram(m prometheus.Histogram) Observer {
	return &PrometheusMetric{
		observe: func(val float64, labels ...string) {
			m.Observe(val)
		},
		Collector: m,
	}
}

type PrometheusMetric struct {
	observe func(val float64, labels ...string)
	prometheus.Collector
}

func (m *PrometheusMetric) Observe(val float64, labels ...string) {
	m.observe(val, labels...)
}
