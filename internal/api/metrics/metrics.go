// Package metrics defines and registers all custom Prometheus metrics for the
// clinic-core API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinic"

// ── Credential metrics ────────────────────────────────────────────────────────

// LoginAttemptsTotal counts credential verifications.
// Labels:
//   - kind:    "staff" or "portal"
//   - outcome: "success", "invalid_credentials", "locked", "not_verified", "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by principal kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// LockoutsTotal counts transitions into the Locked state.
var LockoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of accounts locked after repeated failed logins.",
	},
	[]string{"kind"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// RefreshRotationsTotal counts refresh-token rotations.
// Label:
//   - outcome: "success", "invalid", "expired", "error"
var RefreshRotationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_rotations_total",
		Help:      "Total number of refresh token rotations, by outcome.",
	},
	[]string{"outcome"},
)

// SessionsPurgedTotal counts expired sessions removed by the janitor.
var SessionsPurgedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_purged_total",
		Help:      "Total number of expired refresh sessions deleted.",
	},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditWriteFailuresTotal counts audit appends that failed on the first attempt.
// Label:
//   - sink: "primary" or the mirror name (e.g. "mongo")
var AuditWriteFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_write_failures_total",
		Help:      "Total number of audit entries that could not be written to a sink.",
	},
	[]string{"sink"},
)

// AuditDroppedTotal counts entries lost because both the sink and the outbox failed.
var AuditDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of audit entries dropped after sink and outbox failures.",
	},
)

// AuditReplayedTotal counts outbox entries successfully re-appended.
var AuditReplayedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_replayed_total",
		Help:      "Total number of audit entries replayed from the outbox.",
	},
)

// AuditOutboxDepth tracks entries waiting in the outbox.
var AuditOutboxDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_outbox_depth",
		Help:      "Current number of audit entries waiting in the outbox.",
	},
)

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTPRequestDuration measures handler latency.
// Labels:
//   - method, route: echo method and route template
//   - status: response status code
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)
