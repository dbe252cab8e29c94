package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chirraaa/gymbros/internal/domain"
)

var (
	workoutsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "workouts_submitted_total",
		Help:      "Committed workout submissions partitioned by streak transition.",
	}, []string{"transition"})
	xpAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "xp_awarded_total",
		Help:      "XP credited to the ledger partitioned by reason.",
	}, []string{"reason"})
	personalRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "personal_records_total",
		Help:      "Sets flagged as personal records.",
	})
	levelUps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "level_ups_total",
		Help:      "Workout submissions that raised the user's level.",
	})
	hypeToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "hype_toggles_total",
		Help:      "Hype toggles partitioned by outcome.",
	}, []string{"outcome"})
	conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "conflicts_total",
		Help:      "Concurrent update conflicts partitioned by operation.",
	}, []string{"operation"})
	leaderboardDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "leaderboard_build_seconds",
		Help:      "Time taken to build a weekly leaderboard.",
		Buckets:   prometheus.DefBuckets,
	})
	leaderboardSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gymbros",
		Subsystem: "engine",
		Name:      "leaderboard_last_size",
		Help:      "Number of entries in the most recently built leaderboard.",
	})
)

func init() {
	prometheus.MustRegister(workoutsSubmitted, xpAwarded, personalRecords, levelUps, hypeToggles, conflicts, leaderboardDuration, leaderboardSize)
}

// EngineRecorder exports engine telemetry as Prometheus metrics.
type EngineRecorder struct{}

// NewEngineRecorder returns a recorder backed by the package metrics.
func NewEngineRecorder() EngineRecorder {
	return EngineRecorder{}
}

// WorkoutCommitted implements domain.Recorder.
func (EngineRecorder) WorkoutCommitted(result domain.WorkoutResult) {
	workoutsSubmitted.WithLabelValues(string(result.Transition)).Inc()
	for _, e := range result.Ledger {
		xpAwarded.WithLabelValues(reasonLabel(e.Reason)).Add(float64(e.Amount))
	}
	personalRecords.Add(float64(result.PersonalRecords()))
	if result.LevelUp {
		levelUps.Inc()
	}
}

// HypeToggled implements domain.Recorder.
func (EngineRecorder) HypeToggled(result domain.HypeResult) {
	if !result.Hyped {
		hypeToggles.WithLabelValues("removed").Inc()
		return
	}
	hypeToggles.WithLabelValues("created").Inc()
	xpAwarded.WithLabelValues(domain.ReasonHypeReceived).Add(float64(result.XPAwarded))
}

// Conflict implements domain.Recorder.
func (EngineRecorder) Conflict(operation string) {
	conflicts.WithLabelValues(operation).Inc()
}

// LeaderboardBuilt implements domain.Recorder.
func (EngineRecorder) LeaderboardBuilt(elapsed time.Duration, size int) {
	leaderboardDuration.Observe(elapsed.Seconds())
	leaderboardSize.Set(float64(size))
}

// reasonLabel folds every streak milestone into one label value.
func reasonLabel(reason string) string {
	if strings.HasPrefix(reason, "streak_") {
		return "streak"
	}
	return reason
}
