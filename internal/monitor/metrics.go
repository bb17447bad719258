package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpwatch",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Monitoring cycles by outcome",
		},
		[]string{"outcome"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cdpwatch",
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one scan over the watchlist",
			Buckets:   prometheus.DefBuckets,
		},
	)

	evaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cdpwatch",
			Subsystem: "monitor",
			Name:      "evaluations_total",
			Help:      "Watch entries evaluated against a fresh position read",
		},
	)

	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpwatch",
			Subsystem: "monitor",
			Name:      "alerts_total",
			Help:      "Threshold crossings by delivery result",
		},
		[]string{"result"},
	)

	oracleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpwatch",
			Subsystem: "oracle",
			Name:      "errors_total",
			Help:      "Failed oracle reads by call",
		},
		[]string{"call"},
	)

	watchedEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cdpwatch",
			Subsystem: "monitor",
			Name:      "watched_entries",
			Help:      "Entries in the last watchlist snapshot",
		},
	)
)
