package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reflex/internal/models"
)

// Metrics holds all custom Prometheus metrics for the engine
type Metrics struct {
	// Decision outcomes by source ("pathway", "cache", "generated", "escalation_required")
	Responses *prometheus.CounterVec

	// Matching
	MatchLatency prometheus.Histogram
	MatchMisses  prometheus.Counter

	// Cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Learning loop
	EscalationErrors  prometheus.Counter
	GeneratedPathways prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics and registers a per-tier
// pathway gauge fed live from the store.
func InitMetrics(store *PathwayStore) *Metrics {
	metrics := &Metrics{
		Responses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_responses_total",
			Help: "Total responses served, by source layer",
		}, []string{"source"}),

		MatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reflex_match_duration_seconds",
			Help:    "Pathway match scan latency in seconds",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		MatchMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflex_match_misses_total",
			Help: "Match scans that accepted no pathway",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflex_cache_hits_total",
			Help: "Semantic cache hits",
		}),

		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflex_cache_misses_total",
			Help: "Semantic cache misses",
		}),

		EscalationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflex_escalation_errors_total",
			Help: "Generation collaborator failures and timeouts",
		}),

		GeneratedPathways: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflex_generated_pathways_total",
			Help: "Pathways synthesized by the auto-generator",
		}),
	}

	for _, tier := range []models.Tier{models.TierHot, models.TierWarm, models.TierCool, models.TierCold, models.TierArchived} {
		tier := tier
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "reflex_pathways",
				Help:        "Current number of pathways per tier",
				ConstLabels: prometheus.Labels{"tier": string(tier)},
			},
			func() float64 {
				if store == nil {
					return 0
				}
				return float64(store.TierCounts()[tier])
			},
		))
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil until InitMetrics).
func GetMetrics() *Metrics {
	return globalMetrics
}
