package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizrush_sessions_started_total",
		Help: "Sessions entered, by league.",
	}, []string{"league"})

	SessionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizrush_sessions_settled_total",
		Help: "Sessions settled, by league and outcome.",
	}, []string{"league", "outcome"})

	HintsUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizrush_hints_used_total",
		Help: "Hints applied, by kind.",
	}, []string{"kind"})

	SettlementRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizrush_settlement_retries_total",
		Help: "Settlement credit attempts that had to be retried.",
	})
)
