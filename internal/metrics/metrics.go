// Package metrics exposes prometheus counters and histograms for the
// protocol runtime: frames dispatched by type, FSM transitions and
// integrity violations, pending-response outcomes, and reconnect
// attempts.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polycall",
			Subsystem: "protocol",
			Name:      "frames_dispatched_total",
			Help:      "Frames dispatched by type and connection state at arrival.",
		},
		[]string{"type", "state"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polycall",
			Subsystem: "fsm",
			Name:      "transitions_total",
			Help:      "FSM transitions executed, by transition name and outcome.",
		},
		[]string{"transition", "outcome"},
	)
	integrityViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polycall",
			Subsystem: "fsm",
			Name:      "integrity_violations_total",
			Help:      "Checksum or predicate mismatches detected by VerifyStateIntegrity.",
		},
		[]string{"state"},
	)
	pendingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polycall",
			Subsystem: "session",
			Name:      "pending_outcomes_total",
			Help:      "Outstanding COMMANDs resolved, rejected, or timed out.",
		},
		[]string{"outcome"},
	)
	pendingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polycall",
			Subsystem: "session",
			Name:      "pending_duration_seconds",
			Help:      "Time from COMMAND send to RESPONSE/ERROR/timeout.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	reconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polycall",
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register is idempotent: repeated calls across multiple Contexts in the
// same process are safe.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesDispatched,
			transitions,
			integrityViolations,
			pendingOutcomes,
			pendingDuration,
			reconnectAttempts,
		)
	})
}

func RecordFrameDispatched(frameType, state string) {
	Register()
	framesDispatched.WithLabelValues(frameType, state).Inc()
}

func RecordTransition(name, outcome string) {
	Register()
	transitions.WithLabelValues(name, outcome).Inc()
}

func RecordIntegrityViolation(state string) {
	Register()
	integrityViolations.WithLabelValues(state).Inc()
}

func RecordPendingOutcome(outcome string, d time.Duration) {
	Register()
	pendingOutcomes.WithLabelValues(outcome).Inc()
	pendingDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func RecordReconnectAttempt(outcome string) {
	Register()
	reconnectAttempts.WithLabelValues(outcome).Inc()
}
