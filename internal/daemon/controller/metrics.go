package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bugzood",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Finished runs by terminal phase.",
	}, []string{"phase"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bugzood",
		Subsystem: "runs",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of finished runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
	})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bugzood",
		Subsystem: "runs",
		Name:      "active",
		Help:      "Runs currently executing.",
	})
)
