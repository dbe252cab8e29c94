// Package events defines the gamification event payloads relayed through the outbox.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the outbox.
const (
	TypeWorkoutCompleted = "workout.completed"
	TypeXPAwarded        = "xp.awarded"
	TypeHypeToggled      = "hype.toggled"
)

// WorkoutCompleted is emitted once per committed workout submission.
type WorkoutCompleted struct {
	WorkoutID        string    `json:"workout_id"`
	UserID           string    `json:"user_id"`
	PerformedAt      time.Time `json:"performed_at"`
	XPGained         int64     `json:"xp_gained"`
	XP               int64     `json:"xp"`
	Streak           int       `json:"streak"`
	StreakTransition string    `json:"streak_transition"`
	LevelUp          bool      `json:"level_up"`
	NewLevel         int       `json:"new_level"`
	PersonalRecords  int       `json:"personal_records"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// XPAwarded mirrors one appended ledger entry.
type XPAwarded struct {
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HypeToggled tracks hype creation and removal.
type HypeToggled struct {
	WorkoutID  string    `json:"workout_id"`
	GiverID    string    `json:"giver_id"`
	ReceiverID string    `json:"receiver_id"`
	Hyped      bool      `json:"hyped"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Decode parses payload into the struct registered for eventType.
func Decode(eventType string, payload []byte) (any, error) {
	var target any
	switch eventType {
	case TypeWorkoutCompleted:
		target = &WorkoutCompleted{}
	case TypeXPAwarded:
		target = &XPAwarded{}
	case TypeHypeToggled:
		target = &HypeToggled{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return target, nil
}
