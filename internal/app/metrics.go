package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_rooms_active",
		Help: "Rooms currently held in memory",
	})

	roomsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_rooms_evicted_total",
		Help: "Rooms removed by the idle sweeper",
	})

	autoEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_auto_ends_total",
		Help: "Rooms ended because every connected participant finished",
	})

	joinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_join_rejections_total",
		Help: "Join attempts rejected by gating",
	}, []string{"reason"})

	answersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_answers_total",
		Help: "Answers recorded, by correctness",
	}, []string{"correct"})

	durableWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_durable_writes_total",
		Help: "Write-through jobs by kind and outcome",
	}, []string{"kind", "outcome"})

	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_sync_queue_depth",
		Help: "Write-through jobs waiting for a worker",
	})
)
