package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the matching module.
type Metrics struct {
	// Decision outcomes: auto_linked, suggested, new_identity, already_linked
	MatchOutcome *prometheus.CounterVec

	// Candidate search latency including the fuzzy fallback pass
	SearchLatency prometheus.Histogram

	// Candidates surfaced per search
	CandidatesFound prometheus.Histogram
}

// New creates a Metrics instance with all matching metrics registered.
func New() *Metrics {
	return &Metrics{
		MatchOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_match_outcomes_total",
			Help: "Total matching decisions by outcome",
		}, []string{"outcome"}),

		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_candidate_search_duration_seconds",
			Help:    "Duration of candidate search including fuzzy fallback",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		CandidatesFound: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_match_candidates_found",
			Help:    "Number of candidates surfaced per search",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}),
	}
}

// IncrementOutcome records a matching decision outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.MatchOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveSearch records one candidate search.
func (m *Metrics) ObserveSearch(d time.Duration, candidates int) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
		m.CandidatesFound.Observe(float64(candidates))
	}
}
