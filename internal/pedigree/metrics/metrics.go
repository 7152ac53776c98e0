package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for pedigree tree building.
type Metrics struct {
	BuildLatency prometheus.Histogram
	CacheHits    *prometheus.CounterVec
}

// New creates a Metrics instance with all pedigree metrics registered.
func New() *Metrics {
	return &Metrics{
		BuildLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_pedigree_build_duration_seconds",
			Help:    "Duration of pedigree tree construction",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_pedigree_cache_total",
			Help: "Pedigree cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveBuild records one tree construction.
func (m *Metrics) ObserveBuild(d time.Duration) {
	if m != nil {
		m.BuildLatency.Observe(d.Seconds())
	}
}

// IncrementCache records a cache hit or miss.
func (m *Metrics) IncrementCache(result string) {
	if m != nil {
		m.CacheHits.WithLabelValues(result).Inc()
	}
}
