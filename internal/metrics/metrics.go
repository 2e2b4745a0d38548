// Package metrics exposes the service's Prometheus collectors. Registration
// happens at import via promauto; the HTTP layer serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mobius"

// Label values for call outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// TurnsTotal counts processed turns by outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "turns_total",
		Help:      "Turns processed, labeled by outcome.",
	}, []string{"outcome"})

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "turn_duration_seconds",
		Help:      "End-to-end turn processing time.",
		Buckets:   prometheus.DefBuckets,
	})

	// ToolCalls counts external tool invocations by tool and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "External tool calls, labeled by tool and outcome.",
	}, []string{"tool", "outcome"})

	// LLMCalls counts interpreter and planner invocations by outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Interpreter and planner calls, labeled by call type and outcome.",
	}, []string{"call_type", "outcome"})

	// VisitsScored tracks how many visits each turn scored.
	VisitsScored = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "visits_scored",
		Help:      "Visits scored per turn.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})
)

// Outcome maps an error to its metric label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
