package domain

import "time"

// SetSummary is a set as shown in an exercise history.
type SetSummary struct {
	SetNumber        int
	Reps             int
	Weight           float64
	IsPersonalRecord bool
}

// Session groups the sets of one exercise logged in one workout.
type Session struct {
	WorkoutID   string
	WorkoutName string
	PerformedAt time.Time
	Sets        []SetSummary
	MaxWeight   float64
	TotalVolume float64
	BestSet     SetSummary
}

// ExerciseHistory is the full progression of a user on one exercise.
type ExerciseHistory struct {
	ExerciseID       string
	Sessions         []Session
	AllTimeMaxWeight float64
	AllTimeBestSet   SetSummary
	TotalSessions    int
}

// BuildExerciseHistory groups sets by workout. Sets must arrive ordered by
// workout date ascending; session order follows first appearance.
func BuildExerciseHistory(exerciseID string, sets []HistoricalSet) ExerciseHistory {
	history := ExerciseHistory{ExerciseID: exerciseID, Sessions: []Session{}}
	index := make(map[string]int)

	for _, set := range sets {
		pos, ok := index[set.WorkoutID]
		if !ok {
			pos = len(history.Sessions)
			index[set.WorkoutID] = pos
			history.Sessions = append(history.Sessions, Session{
				WorkoutID:   set.WorkoutID,
				WorkoutName: set.WorkoutName,
				PerformedAt: set.PerformedAt,
			})
		}
		session := &history.Sessions[pos]
		summary := SetSummary{
			SetNumber:        set.SetNumber,
			Reps:             set.Reps,
			Weight:           set.Weight,
			IsPersonalRecord: set.IsPersonalRecord,
		}
		session.Sets = append(session.Sets, summary)
		session.TotalVolume += float64(set.Reps) * set.Weight
		if set.Weight > session.MaxWeight {
			session.MaxWeight = set.Weight
			session.BestSet = summary
		}
	}

	for _, session := range history.Sessions {
		if session.MaxWeight > history.AllTimeMaxWeight {
			history.AllTimeMaxWeight = session.MaxWeight
			history.AllTimeBestSet = session.BestSet
		}
	}
	history.TotalSessions = len(history.Sessions)
	return history
}
