package domain

import (
	"sort"
	"time"
)

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WeekWindow returns the week containing now in loc: Monday 00:00 through
// Sunday 23:59:59.999999999.
func WeekWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	start := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return Window{Start: start, End: end}
}

// CohortMember is one user of a leaderboard cohort with their workouts inside
// the scoring window.
type CohortMember struct {
	User     User
	Workouts []Workout
}

// Medal is purely positional.
type Medal string

const (
	MedalNone   Medal = ""
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

// LeaderboardEntry is one ranked row of the weekly leaderboard.
type LeaderboardEntry struct {
	Position       int
	Medal          Medal
	UserID         string
	Username       string
	Score          float64
	WeeklyWorkouts int
	WeeklyVolume   float64
	Streak         int
	Level          int
	Rank           Tier
}

// Leaderboard is the ranked cohort for one week.
type Leaderboard struct {
	Window  Window
	Entries []LeaderboardEntry
}

// WeeklyScore combines workout count, volume and the current streak.
func (s Scoring) WeeklyScore(workouts int, volume float64, streak int) float64 {
	return float64(workouts)*s.WorkoutPoints + volume/s.VolumeDivisor + float64(streak)*s.StreakPoints
}

// RankCohort scores every member and orders them by descending score. Equal
// scores keep their input order; callers must not rely on that order.
// Workouts outside window are ignored.
func RankCohort(members []CohortMember, window Window, rules Rules) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(members))
	for _, m := range members {
		var (
			count  int
			volume float64
		)
		for _, w := range m.Workouts {
			if !window.Contains(w.PerformedAt) {
				continue
			}
			count++
			volume += w.Volume()
		}
		entries = append(entries, LeaderboardEntry{
			UserID:         m.User.ID,
			Username:       m.User.Username,
			Score:          rules.Scoring.WeeklyScore(count, volume, m.User.Streak),
			WeeklyWorkouts: count,
			WeeklyVolume:   volume,
			Streak:         m.User.Streak,
			Level:          rules.Progression.Level(m.User.XP),
			Rank:           rules.Progression.Rank(m.User.XP),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	medals := []Medal{MedalGold, MedalSilver, MedalBronze}
	for i := range entries {
		entries[i].Position = i + 1
		if i < len(medals) {
			entries[i].Medal = medals[i]
		}
	}
	return entries
}
