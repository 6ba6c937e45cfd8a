package contextstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the store's Prometheus collectors.
type Metrics struct {
	Commits         *prometheus.CounterVec
	CommitErrors    *prometheus.CounterVec
	CommitDuration  prometheus.Histogram
	IntegrityErrors prometheus.Counter
	PublishErrors   prometheus.Counter
}

// NewMetrics registers the store metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "Frames committed, by origin and whether the frame was new.",
		}, []string{"origin", "new_frame"}),
		CommitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "store",
			Name:      "commit_errors_total",
			Help:      "Rejected or failed writes, by error kind.",
		}, []string{"kind"}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "frames",
			Subsystem: "store",
			Name:      "commit_duration_seconds",
			Help:      "Time spent in the driver's atomic commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		IntegrityErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "store",
			Name:      "integrity_errors_total",
			Help:      "Frame reads that failed integrity verification.",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "frames",
			Subsystem: "store",
			Name:      "publish_errors_total",
			Help:      "Commit events that could not be published.",
		}),
	}
}
