package domain

import "time"

// User is the persisted progression state of one athlete. Level and rank are
// never stored; they are derived from XP through the Progression rules.
type User struct {
	ID            string
	Username      string
	XP            int64
	Streak        int
	LastWorkoutAt *time.Time
	HeightCm      *float64
	WeightKg      *float64
	// Version increments on every write to the row and guards the
	// read-modify-write of XP and streak.
	Version   int64
	CreatedAt time.Time
}

// Workout is an immutable training session owned by one user.
type Workout struct {
	ID          string
	UserID      string
	Name        string
	PerformedAt time.Time
	DurationMin *int
	Notes       string
	Exercises   []WorkoutExercise
	CreatedAt   time.Time
}

// WorkoutExercise is one catalog exercise performed inside a workout.
type WorkoutExercise struct {
	ID         string
	ExerciseID string
	OrderIndex int
	Sets       []ExerciseSet
}

// ExerciseSet is a single set. IsPersonalRecord is fixed at ingestion.
type ExerciseSet struct {
	ID               string
	SetNumber        int
	Reps             int
	Weight           float64
	IsPersonalRecord bool
}

// Volume returns reps times weight.
func (s ExerciseSet) Volume() float64 {
	return float64(s.Reps) * s.Weight
}

// Volume sums the volume of every set in the workout.
func (w Workout) Volume() float64 {
	var total float64
	for _, ex := range w.Exercises {
		for _, set := range ex.Sets {
			total += set.Volume()
		}
	}
	return total
}

// SetCount returns the number of sets across all exercises.
func (w Workout) SetCount() int {
	n := 0
	for _, ex := range w.Exercises {
		n += len(ex.Sets)
	}
	return n
}

// HasPersonalRecord reports whether any set was flagged as a record.
func (w Workout) HasPersonalRecord() bool {
	for _, ex := range w.Exercises {
		for _, set := range ex.Sets {
			if set.IsPersonalRecord {
				return true
			}
		}
	}
	return false
}

// Hype is a single reaction of a giver on a workout.
type Hype struct {
	ID         string
	WorkoutID  string
	GiverID    string
	ReceiverID string
	CreatedAt  time.Time
}

// LedgerEntry is an append-only XP audit record.
type LedgerEntry struct {
	ID        string
	UserID    string
	Amount    int64
	Reason    string
	CreatedAt time.Time
}

// HistoricalSet is a previously committed set of a user for one exercise.
type HistoricalSet struct {
	WorkoutID        string
	WorkoutName      string
	PerformedAt      time.Time
	ExerciseID       string
	SetNumber        int
	Reps             int
	Weight           float64
	IsPersonalRecord bool
}

// Cursor models the pagination token for ledger listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
