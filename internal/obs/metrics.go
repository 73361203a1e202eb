package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's Prometheus collectors.
type Metrics struct {
	RateLimited          *prometheus.CounterVec
	OccurrencesGenerated prometheus.Counter
	RollupDuration       prometheus.Histogram
	SnapshotsWritten     prometheus.Counter
}

// NewMetrics registers the collectors on the provided registerer. A nil
// registerer uses the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_rate_limited_total",
			Help: "Requests rejected by the rate guard, by operation.",
		}, []string{"operation"}),
		OccurrencesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_occurrences_generated_total",
			Help: "Occurrence rows written by the generator.",
		}),
		RollupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_rollup_duration_seconds",
			Help:    "Wall time of activity rollup invocations.",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_rollup_snapshots_total",
			Help: "Activity history snapshot rows written by rollups.",
		}),
	}

	reg.MustRegister(m.RateLimited, m.OccurrencesGenerated, m.RollupDuration, m.SnapshotsWritten)
	return m
}
