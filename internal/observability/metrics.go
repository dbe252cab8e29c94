package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gymbros",
		Subsystem: "persistence",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout committed to Postgres.",
	})
	eventLoggedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gymbros",
		Subsystem: "persistence",
		Name:      "last_event_logged_timestamp_seconds",
		Help:      "Unix timestamp of the most recent gamification event stored by the consumer.",
	})
)

func init() {
	prometheus.MustRegister(workoutPersistGauge, eventLoggedGauge)
}

// RecordWorkoutPersisted updates the persistence watermark gauge.
func RecordWorkoutPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

// RecordEventLogged updates the consumer watermark gauge.
func RecordEventLogged(ts time.Time) {
	if ts.IsZero() {
		return
	}
	eventLoggedGauge.Set(float64(ts.Unix()))
}
