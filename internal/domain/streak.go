package domain

import "time"

// StreakTransition names the edge taken by the streak state machine.
type StreakTransition string

const (
	StreakReset    StreakTransition = "reset"
	StreakContinue StreakTransition = "continue"
	StreakHold     StreakTransition = "hold"
)

// StreakOutcome is the result of applying one workout completion.
type StreakOutcome struct {
	Transition    StreakTransition
	Streak        int
	LastWorkoutAt time.Time
	// Milestones reached by this transition; only ever set on continue.
	Milestones []Milestone
}

// AdvanceStreak computes the next streak state for a workout completed at now.
//
// The gap is measured in whole elapsed days. No previous workout or a gap of
// two days or more resets to 1, a gap of exactly one day continues, and a
// same-day workout holds the current count. A negative gap (the previous
// workout lies in the future) also holds.
func AdvanceStreak(streak int, lastWorkoutAt *time.Time, now time.Time, milestones []Milestone) StreakOutcome {
	out := StreakOutcome{LastWorkoutAt: now}

	if lastWorkoutAt == nil {
		out.Transition = StreakReset
		out.Streak = 1
		return out
	}

	gapDays := floorDays(now.Sub(*lastWorkoutAt))
	switch {
	case gapDays >= 2:
		out.Transition = StreakReset
		out.Streak = 1
	case gapDays == 1:
		out.Transition = StreakContinue
		out.Streak = streak + 1
		for _, m := range milestones {
			if m.Days == out.Streak {
				out.Milestones = append(out.Milestones, m)
			}
		}
	default:
		out.Transition = StreakHold
		out.Streak = streak
	}
	return out
}

func floorDays(d time.Duration) int64 {
	const day = 24 * time.Hour
	days := int64(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}
