// Package metrics provides Prometheus metrics for puntos.
// Counters for engine actions, point flow, achievements, challenges and
// storage health; exposed on /metrics when telemetry is enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Actions ────────────────────────────────────────────────────────────────

// ActionsRecorded counts ledger-changing actions by kind.
var ActionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "actions_recorded_total",
	Help:      "Actions that appended a ledger entry.",
}, []string{"kind"})

// DuplicateActions counts repeats answered as no-ops.
var DuplicateActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "duplicate_actions_total",
	Help:      "Idempotent or already-referenced actions ignored.",
}, []string{"kind"})

// RejectedOperations counts engine calls that returned an error.
var RejectedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "rejected_operations_total",
	Help:      "Engine operations rejected, by operation and reason.",
}, []string{"op", "reason"})

// ─── Points ─────────────────────────────────────────────────────────────────

// PointsAwarded counts points granted, by the kind that granted them.
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "points_awarded_total",
	Help:      "Points granted by kind.",
}, []string{"kind"})

// PointsSpent counts points redeemed.
var PointsSpent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "points_spent_total",
	Help:      "Points spent on redemptions.",
})

// LevelUps counts profiles reaching a higher level.
var LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "level_ups_total",
	Help:      "Profiles reaching a level, by level.",
}, []string{"level"})

// ─── Achievements & Challenges ──────────────────────────────────────────────

// AchievementsUnlocked counts unlocks by achievement id.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "achievements_unlocked_total",
	Help:      "Achievements unlocked, by id.",
}, []string{"achievement"})

// ChallengesCompleted counts challenges reaching their target.
var ChallengesCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "challenges_completed_total",
	Help:      "Challenges that reached their target.",
})

// ChallengesClaimed counts paid challenge rewards.
var ChallengesClaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "challenges_claimed_total",
	Help:      "Challenge rewards paid out.",
})

// ─── Profiles ───────────────────────────────────────────────────────────────

// ProfilesRegistered counts new profiles.
var ProfilesRegistered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "profiles_registered_total",
	Help:      "Profiles created.",
})

// CorruptRecoveries counts stored profiles reset after failing validation.
var CorruptRecoveries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "corrupt_recoveries_total",
	Help:      "Persisted profiles reinitialized after failing validation.",
})

// CacheRefreshes counts cached snapshots reloaded because another writer
// moved the stored version.
var CacheRefreshes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "cache_refreshes_total",
	Help:      "Cached profiles reloaded after an external write.",
})

// Subscribers tracks live snapshot subscriptions.
var Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "puntos",
	Name:      "subscribers",
	Help:      "Active profile snapshot subscriptions.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "puntos",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puntos",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
