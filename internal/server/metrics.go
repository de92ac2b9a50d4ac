package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_gateway_connections",
		Help: "Open websocket connections",
	})

	intentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_gateway_intents_total",
		Help: "Websocket requests by type and result code",
	}, []string{"type", "result"})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_gateway_evictions_total",
		Help: "Subscribers dropped for falling behind",
	})
)
