package game

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_game_started_total",
		Help: "Games moved from lobby to in progress",
	})

	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_game_claims_total",
		Help: "Board cells claimed by team",
	}, []string{"team"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_game_outcomes_total",
		Help: "Finished games by outcome",
	}, []string{"outcome"})

	// resolveDuration includes the oracle call and its rate-limit wait.
	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_game_resolve_duration_seconds",
		Help:    "Resolve duration in seconds by result",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	}, []string{"result"})

	roomsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_game_rooms_expired_total",
		Help: "Rooms removed by the janitor",
	})
)
