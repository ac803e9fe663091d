package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchRequests counts processed match requests by coordinator outcome
	// (matched, enqueued, dropped, skipped)
	MatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_requests_total",
			Help: "Match requests processed by this coordinator, by outcome",
		},
		[]string{"outcome"},
	)

	MatchScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_compatibility_score",
			Help:    "Compatibility score of successful matches",
			Buckets: prometheus.LinearBuckets(40, 10, 7),
		},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "match_claim_conflicts_total",
			Help: "Candidate claims lost to another coordinator",
		},
	)

	WaitingPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waiting_pool_size",
			Help: "Entries in the waiting pool at the last scan",
		},
	)

	PoolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiting_pool_errors_total",
			Help: "Failed waiting pool operations",
		},
		[]string{"operation"},
	)

	TransportPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_publish_total",
			Help: "Messages published on a broadcast channel, by result",
		},
		[]string{"channel", "result"},
	)

	PresenceConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_connections",
			Help: "Live connections registered in this process",
		},
	)

	// MatchNotifications counts match deliveries by mode (room, direct, absent)
	MatchNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_notifications_total",
			Help: "Match result deliveries attempted by this process",
		},
		[]string{"mode"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
