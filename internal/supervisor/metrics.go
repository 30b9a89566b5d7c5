package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llamad",
		Subsystem: "supervisor",
		Name:      "spawns_total",
		Help:      "Engine start attempts by alias.",
	}, []string{"alias"})

	crashesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llamad",
		Subsystem: "supervisor",
		Name:      "crashes_total",
		Help:      "Engine exits outside of eviction or shutdown, by alias.",
	}, []string{"alias"})

	evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llamad",
		Subsystem: "supervisor",
		Name:      "evictions_total",
		Help:      "Handles evicted, by reason (idle, lru).",
	}, []string{"reason"})

	readyHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "llamad",
		Subsystem: "supervisor",
		Name:      "ready_handles",
		Help:      "Handles currently in the Ready state.",
	})

	queueWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "llamad",
		Subsystem: "supervisor",
		Name:      "queue_waiters",
		Help:      "Requests queued waiting for an engine to become ready.",
	})
)
