package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports dispatch pipeline metrics in Prometheus format.
type Metrics struct {
	submits           *prometheus.CounterVec
	completionLatency prometheus.Histogram
	queueDepth        prometheus.Gauge
}

// NewMetrics creates dispatch metrics and registers them with the registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		submits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hiwar",
				Subsystem: "chat",
				Name:      "submits_total",
				Help:      "Total number of submitted turns by outcome",
			},
			[]string{"status"},
		),
		completionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "hiwar",
				Subsystem: "chat",
				Name:      "completion_latency_seconds",
				Help:      "Completion service call latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hiwar",
				Subsystem: "chat",
				Name:      "conversation_queues",
				Help:      "Number of live per-conversation dispatch queues",
			},
		),
	}

	registry.MustRegister(m.submits, m.completionLatency, m.queueDepth)
	return m
}

// recordSubmit counts one finished submission. Nil-safe so the dispatcher
// can run without metrics in tests.
func (m *Metrics) recordSubmit(status string) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(status).Inc()
}

func (m *Metrics) recordCompletionLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.completionLatency.Observe(d.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
