package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the queue's Prometheus collectors.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Attached      prometheus.Counter
	ProviderCalls *prometheus.CounterVec
	InFlight      prometheus.Gauge
	QueueDepth    prometheus.GaugeFunc
	Duration      *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, depth func() float64) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Finished generation requests by outcome.",
		}, []string{"outcome"}),
		Attached: f.NewCounter(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "generation",
			Name:      "attached_total",
			Help:      "Requests attached to an in-flight request for the same node and agent.",
		}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "generation",
			Name:      "provider_calls_total",
			Help:      "Generator invocations by result.",
		}, []string{"result"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "frames",
			Subsystem: "generation",
			Name:      "in_flight",
			Help:      "Pending and running requests.",
		}),
		QueueDepth: f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "frames",
			Subsystem: "generation",
			Name:      "queue_depth",
			Help:      "Requests waiting for a worker.",
		}, depth),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frames",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Time from admission to a terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"outcome"}),
	}
}
