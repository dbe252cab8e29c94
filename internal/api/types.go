package api

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Chirraaa/gymbros/internal/domain"
)

// SubmitWorkoutRequest is the payload for POST /v1/workouts. The submitting
// user is the token subject.
type SubmitWorkoutRequest struct {
	Name        string            `json:"name"`
	PerformedAt *time.Time        `json:"performed_at,omitempty"`
	DurationMin *int              `json:"duration_min,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Exercises   []ExerciseRequest `json:"exercises"`
}

// ExerciseRequest is one exercise of a submission.
type ExerciseRequest struct {
	ExerciseID string       `json:"exercise_id"`
	Sets       []SetRequest `json:"sets"`
}

// SetRequest is one logged set.
type SetRequest struct {
	SetNumber int     `json:"set_number"`
	Reps      int     `json:"reps"`
	Weight    float64 `json:"weight"`
}

// Validate ensures request correctness.
func (r SubmitWorkoutRequest) Validate() error {
	if len(r.Exercises) == 0 {
		return errors.New("at least one exercise is required")
	}
	if r.DurationMin != nil && *r.DurationMin <= 0 {
		return errors.New("duration_min must be > 0")
	}
	for i, ex := range r.Exercises {
		if strings.TrimSpace(ex.ExerciseID) == "" {
			return fmt.Errorf("exercises[%d].exercise_id is required", i)
		}
		if len(ex.Sets) == 0 {
			return fmt.Errorf("exercises[%d] needs at least one set", i)
		}
		seen := make(map[int]struct{}, len(ex.Sets))
		for j, set := range ex.Sets {
			if set.SetNumber <= 0 {
				return fmt.Errorf("exercises[%d].sets[%d].set_number must be > 0", i, j)
			}
			if _, dup := seen[set.SetNumber]; dup {
				return fmt.Errorf("exercises[%d] repeats set_number %d", i, set.SetNumber)
			}
			seen[set.SetNumber] = struct{}{}
			if set.Reps <= 0 {
				return fmt.Errorf("exercises[%d].sets[%d].reps must be > 0", i, j)
			}
			if set.Weight < 0 || math.IsNaN(set.Weight) || math.IsInf(set.Weight, 0) {
				return fmt.Errorf("exercises[%d].sets[%d].weight must be a non-negative number", i, j)
			}
		}
	}
	return nil
}

func (r SubmitWorkoutRequest) toInput(userID string) domain.SubmitWorkoutInput {
	input := domain.SubmitWorkoutInput{
		UserID:      userID,
		Name:        strings.TrimSpace(r.Name),
		DurationMin: r.DurationMin,
		Notes:       r.Notes,
		Exercises:   make([]domain.ExerciseInput, 0, len(r.Exercises)),
	}
	if r.PerformedAt != nil {
		input.PerformedAt = *r.PerformedAt
	}
	for _, ex := range r.Exercises {
		in := domain.ExerciseInput{ExerciseID: ex.ExerciseID, Sets: make([]domain.SetInput, 0, len(ex.Sets))}
		for _, set := range ex.Sets {
			in.Sets = append(in.Sets, domain.SetInput{SetNumber: set.SetNumber, Reps: set.Reps, Weight: set.Weight})
		}
		input.Exercises = append(input.Exercises, in)
	}
	return input
}

// WorkoutResponse is returned after a successful submission.
type WorkoutResponse struct {
	WorkoutID        string          `json:"workout_id"`
	XPGained         int64           `json:"xp_gained"`
	XP               int64           `json:"xp"`
	LevelUp          bool            `json:"level_up"`
	NewLevel         int             `json:"new_level"`
	Streak           int             `json:"streak"`
	StreakTransition string          `json:"streak_transition"`
	PerSet           []SetResultView `json:"per_set"`
}

// SetResultView reports the record flag of one submitted set.
type SetResultView struct {
	ExerciseID       string `json:"exercise_id"`
	SetNumber        int    `json:"set_number"`
	IsPersonalRecord bool   `json:"is_personal_record"`
}

// WorkoutDetailResponse is a stored workout with its hype state for the caller.
type WorkoutDetailResponse struct {
	WorkoutID         string                `json:"workout_id"`
	UserID            string                `json:"user_id"`
	Username          string                `json:"username"`
	Name              string                `json:"name"`
	PerformedAt       time.Time             `json:"performed_at"`
	DurationMin       *int                  `json:"duration_min,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	Exercises         []WorkoutExerciseView `json:"exercises"`
	TotalSets         int                   `json:"total_sets"`
	TotalVolume       float64               `json:"total_volume"`
	HasPersonalRecord bool                  `json:"has_personal_record"`
	HypeCount         int                   `json:"hype_count"`
	Hyped             bool                  `json:"hyped"`
	IsOwner           bool                  `json:"is_owner"`
}

// WorkoutExerciseView is one exercise of a stored workout.
type WorkoutExerciseView struct {
	ExerciseID string    `json:"exercise_id"`
	Sets       []SetView `json:"sets"`
}

// HypeResponse reports the hype state after a toggle.
type HypeResponse struct {
	Hyped     bool  `json:"hyped"`
	XPAwarded int64 `json:"xp_awarded"`
}

// LeaderboardRequest is the payload for POST /v1/leaderboard.
type LeaderboardRequest struct {
	CohortUserIDs []string   `json:"cohort_user_ids"`
	Now           *time.Time `json:"now,omitempty"`
}

// Validate ensures request correctness.
func (r LeaderboardRequest) Validate() error {
	if len(r.CohortUserIDs) == 0 {
		return errors.New("cohort_user_ids must not be empty")
	}
	if len(r.CohortUserIDs) > 500 {
		return errors.New("cohort_user_ids is limited to 500 users")
	}
	return nil
}

// LeaderboardResponse is the ranked weekly cohort.
type LeaderboardResponse struct {
	WeekStart time.Time              `json:"week_start"`
	WeekEnd   time.Time              `json:"week_end"`
	Entries   []LeaderboardEntryView `json:"entries"`
}

// LeaderboardEntryView is one ranked row.
type LeaderboardEntryView struct {
	Position       int     `json:"position"`
	Medal          string  `json:"medal,omitempty"`
	UserID         string  `json:"user_id"`
	Username       string  `json:"username"`
	Score          float64 `json:"score"`
	WeeklyWorkouts int     `json:"weekly_workouts"`
	WeeklyVolume   float64 `json:"weekly_volume"`
	Streak         int     `json:"streak"`
	Level          int     `json:"level"`
	Rank           string  `json:"rank"`
	RankIcon       string  `json:"rank_icon,omitempty"`
}

// ProgressResponse is a user's derived progression view.
type ProgressResponse struct {
	UserID        string     `json:"user_id"`
	XP            int64      `json:"xp"`
	Level         int        `json:"level"`
	NextLevelXP   int64      `json:"next_level_xp"`
	LevelProgress float64    `json:"level_progress"`
	Rank          string     `json:"rank"`
	RankIcon      string     `json:"rank_icon,omitempty"`
	Streak        int        `json:"streak"`
	LastWorkoutAt *time.Time `json:"last_workout_at,omitempty"`
	BMI           *float64   `json:"bmi,omitempty"`
	BMICategory   string     `json:"bmi_category,omitempty"`
}

// LedgerResponse pages ledger entries.
type LedgerResponse struct {
	Items      []LedgerEntryView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// LedgerEntryView is one XP ledger row.
type LedgerEntryView struct {
	EntryID   string    `json:"entry_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ExerciseHistoryResponse is a user's progression on one exercise.
type ExerciseHistoryResponse struct {
	ExerciseID       string        `json:"exercise_id"`
	Sessions         []SessionView `json:"sessions"`
	AllTimeMaxWeight float64       `json:"all_time_max_weight"`
	AllTimeBestSet   *SetView      `json:"all_time_best_set,omitempty"`
	TotalSessions    int           `json:"total_sessions"`
}

// SessionView groups the sets of one workout.
type SessionView struct {
	WorkoutID   string    `json:"workout_id"`
	WorkoutName string    `json:"workout_name"`
	PerformedAt time.Time `json:"performed_at"`
	Sets        []SetView `json:"sets"`
	MaxWeight   float64   `json:"max_weight"`
	TotalVolume float64   `json:"total_volume"`
	BestSet     *SetView  `json:"best_set,omitempty"`
}

// SetView is a stored set.
type SetView struct {
	SetNumber        int     `json:"set_number"`
	Reps             int     `json:"reps"`
	Weight           float64 `json:"weight"`
	IsPersonalRecord bool    `json:"is_personal_record"`
}

func toWorkoutResponse(r domain.WorkoutResult) WorkoutResponse {
	resp := WorkoutResponse{
		WorkoutID:        r.WorkoutID,
		XPGained:         r.XPGained,
		XP:               r.XP,
		LevelUp:          r.LevelUp,
		NewLevel:         r.NewLevel,
		Streak:           r.Streak,
		StreakTransition: string(r.Transition),
		PerSet:           make([]SetResultView, 0, len(r.Sets)),
	}
	for _, s := range r.Sets {
		resp.PerSet = append(resp.PerSet, SetResultView{
			ExerciseID:       s.ExerciseID,
			SetNumber:        s.SetNumber,
			IsPersonalRecord: s.IsPersonalRecord,
		})
	}
	return resp
}

func toWorkoutDetailResponse(d domain.WorkoutDetail) WorkoutDetailResponse {
	w := d.Workout
	resp := WorkoutDetailResponse{
		WorkoutID:         w.ID,
		UserID:            w.UserID,
		Username:          d.OwnerUsername,
		Name:              w.Name,
		PerformedAt:       w.PerformedAt,
		DurationMin:       w.DurationMin,
		Notes:             w.Notes,
		Exercises:         make([]WorkoutExerciseView, 0, len(w.Exercises)),
		TotalSets:         w.SetCount(),
		TotalVolume:       w.Volume(),
		HasPersonalRecord: w.HasPersonalRecord(),
		HypeCount:         d.HypeCount,
		Hyped:             d.ViewerHyped,
		IsOwner:           d.ViewerIsOwner,
	}
	for _, ex := range w.Exercises {
		view := WorkoutExerciseView{ExerciseID: ex.ExerciseID, Sets: make([]SetView, 0, len(ex.Sets))}
		for _, set := range ex.Sets {
			view.Sets = append(view.Sets, SetView{
				SetNumber:        set.SetNumber,
				Reps:             set.Reps,
				Weight:           set.Weight,
				IsPersonalRecord: set.IsPersonalRecord,
			})
		}
		resp.Exercises = append(resp.Exercises, view)
	}
	return resp
}

func toLeaderboardResponse(b domain.Leaderboard) LeaderboardResponse {
	resp := LeaderboardResponse{
		WeekStart: b.Window.Start,
		WeekEnd:   b.Window.End,
		Entries:   make([]LeaderboardEntryView, 0, len(b.Entries)),
	}
	for _, e := range b.Entries {
		resp.Entries = append(resp.Entries, LeaderboardEntryView{
			Position:       e.Position,
			Medal:          string(e.Medal),
			UserID:         e.UserID,
			Username:       e.Username,
			Score:          e.Score,
			WeeklyWorkouts: e.WeeklyWorkouts,
			WeeklyVolume:   e.WeeklyVolume,
			Streak:         e.Streak,
			Level:          e.Level,
			Rank:           e.Rank.Name,
			RankIcon:       e.Rank.Icon,
		})
	}
	return resp
}

func toProgressResponse(p domain.ProgressSnapshot) ProgressResponse {
	return ProgressResponse{
		UserID:        p.UserID,
		XP:            p.XP,
		Level:         p.Level,
		NextLevelXP:   p.NextLevelXP,
		LevelProgress: p.LevelProgress,
		Rank:          p.Rank.Name,
		RankIcon:      p.Rank.Icon,
		Streak:        p.Streak,
		LastWorkoutAt: p.LastWorkoutAt,
		BMI:           p.BMI,
		BMICategory:   string(p.BMICategory),
	}
}

func toHistoryResponse(h domain.ExerciseHistory) ExerciseHistoryResponse {
	resp := ExerciseHistoryResponse{
		ExerciseID:       h.ExerciseID,
		Sessions:         make([]SessionView, 0, len(h.Sessions)),
		AllTimeMaxWeight: h.AllTimeMaxWeight,
		TotalSessions:    h.TotalSessions,
	}
	if h.AllTimeMaxWeight > 0 {
		best := toSetView(h.AllTimeBestSet)
		resp.AllTimeBestSet = &best
	}
	for _, s := range h.Sessions {
		view := SessionView{
			WorkoutID:   s.WorkoutID,
			WorkoutName: s.WorkoutName,
			PerformedAt: s.PerformedAt,
			Sets:        make([]SetView, 0, len(s.Sets)),
			MaxWeight:   s.MaxWeight,
			TotalVolume: s.TotalVolume,
		}
		for _, set := range s.Sets {
			view.Sets = append(view.Sets, toSetView(set))
		}
		if s.MaxWeight > 0 {
			best := toSetView(s.BestSet)
			view.BestSet = &best
		}
		resp.Sessions = append(resp.Sessions, view)
	}
	return resp
}

func toSetView(s domain.SetSummary) SetView {
	return SetView{
		SetNumber:        s.SetNumber,
		Reps:             s.Reps,
		Weight:           s.Weight,
		IsPersonalRecord: s.IsPersonalRecord,
	}
}
