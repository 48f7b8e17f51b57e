package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_sessions_started_total",
		Help: "Total number of newly created reading sessions.",
	})

	sessionsResumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_sessions_resumed_total",
		Help: "Total number of resumed reading sessions.",
	})

	choicesResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_choices_resolved_total",
		Help: "Total number of successfully resolved choices.",
	})

	sessionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_sessions_completed_total",
		Help: "Total number of sessions that reached an ending.",
	})
)
