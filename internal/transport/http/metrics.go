package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_ws_connections",
		Help: "Open real-time connections",
	})

	wsEventsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_ws_events_received_total",
		Help: "Inbound protocol events by type",
	}, []string{"type"})

	wsEventsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_ws_events_sent_total",
		Help: "Outbound protocol events by type",
	}, []string{"type"})
)
