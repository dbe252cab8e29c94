package consumer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chirraaa/gymbros/internal/events"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Kafka messages committed after handling, by gamification event type.",
	}, []string{"event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Failed handler attempts by event type and whether the event was malformed.",
	}, []string{"event_type", "malformed"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records without valid Schema Registry framing, by topic.",
	}, []string{"topic"})

	loggedXPCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "consumer",
		Name:      "logged_xp_total",
		Help:      "XP carried by xp.awarded events written to the event log, by reason.",
	}, []string{"reason"})

	loggedWorkoutsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "consumer",
		Name:      "logged_workouts_total",
		Help:      "workout.completed events written to the event log, by streak transition.",
	}, []string{"transition"})

	loggedHypesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gymbros",
		Subsystem: "consumer",
		Name:      "logged_hypes_total",
		Help:      "hype.toggled events written to the event log, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter,
		loggedXPCounter, loggedWorkoutsCounter, loggedHypesCounter)
}

// knownEventTypes bounds the event_type label; anything else is "other".
var knownEventTypes = map[string]struct{}{
	events.TypeWorkoutCompleted: {},
	events.TypeXPAwarded:        {},
	events.TypeHypeToggled:      {},
}

func eventTypeLabel(eventType string) string {
	if _, ok := knownEventTypes[eventType]; ok {
		return eventType
	}
	return "other"
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(eventTypeLabel(msg.EventType)).Inc()
}

func recordHandlerError(msg Message, malformed bool) {
	label := "false"
	if malformed {
		label = "true"
	}
	handlerErrorCounter.WithLabelValues(eventTypeLabel(msg.EventType), label).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

// recordLogged counts the gamification content of an event that was newly
// written to the event log.
func recordLogged(event any) {
	switch e := event.(type) {
	case *events.XPAwarded:
		loggedXPCounter.WithLabelValues(e.Reason).Add(float64(e.Amount))
	case *events.WorkoutCompleted:
		loggedWorkoutsCounter.WithLabelValues(e.StreakTransition).Inc()
	case *events.HypeToggled:
		outcome := "removed"
		if e.Hyped {
			outcome = "created"
		}
		loggedHypesCounter.WithLabelValues(outcome).Inc()
	}
}
