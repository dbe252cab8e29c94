package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdvanceStreakSequence(t *testing.T) {
	milestones := DefaultRules().Rewards.StreakMilestones
	day1 := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

	first := AdvanceStreak(0, nil, day1, milestones)
	require.Equal(t, StreakReset, first.Transition)
	require.Equal(t, 1, first.Streak)
	require.Equal(t, day1, first.LastWorkoutAt)

	day2 := day1.Add(24 * time.Hour)
	second := AdvanceStreak(first.Streak, &first.LastWorkoutAt, day2, milestones)
	require.Equal(t, StreakContinue, second.Transition)
	require.Equal(t, 2, second.Streak)
	require.Empty(t, second.Milestones)

	day5 := day2.Add(3 * 24 * time.Hour)
	third := AdvanceStreak(second.Streak, &second.LastWorkoutAt, day5, milestones)
	require.Equal(t, StreakReset, third.Transition)
	require.Equal(t, 1, third.Streak)
	require.Equal(t, day5, third.LastWorkoutAt)
}

func TestAdvanceStreakGaps(t *testing.T) {
	last := time.Date(2024, time.March, 4, 20, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		now        time.Time
		transition StreakTransition
		streak     int
	}{
		{"same day", last.Add(2 * time.Hour), StreakHold, 4},
		{"just under a day", last.Add(23*time.Hour + 59*time.Minute), StreakHold, 4},
		{"exactly one day", last.Add(24 * time.Hour), StreakContinue, 5},
		{"just under two days", last.Add(47 * time.Hour), StreakContinue, 5},
		{"two days", last.Add(48 * time.Hour), StreakReset, 1},
		{"clock skew", last.Add(-time.Hour), StreakHold, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := AdvanceStreak(4, &last, tc.now, nil)
			require.Equal(t, tc.transition, out.Transition)
			require.Equal(t, tc.streak, out.Streak)
			require.Equal(t, tc.now, out.LastWorkoutAt)
		})
	}
}

func TestAdvanceStreakMilestonesFireOnContinueOnly(t *testing.T) {
	milestones := []Milestone{{Days: 3, Bonus: 30}, {Days: 7, Bonus: 75}}
	last := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

	out := AdvanceStreak(2, &last, last.Add(24*time.Hour), milestones)
	require.Equal(t, []Milestone{{Days: 3, Bonus: 30}}, out.Milestones)

	out = AdvanceStreak(3, &last, last.Add(24*time.Hour), milestones)
	require.Empty(t, out.Milestones)

	// a hold at 3 does not re-cross the milestone
	out = AdvanceStreak(3, &last, last.Add(time.Hour), milestones)
	require.Empty(t, out.Milestones)

	out = AdvanceStreak(6, &last, last.Add(24*time.Hour), milestones)
	require.Equal(t, []Milestone{{Days: 7, Bonus: 75}}, out.Milestones)
}

func TestFloorDays(t *testing.T) {
	require.Equal(t, int64(0), floorDays(0))
	require.Equal(t, int64(1), floorDays(36*time.Hour))
	require.Equal(t, int64(-1), floorDays(-time.Minute))
	require.Equal(t, int64(-1), floorDays(-24*time.Hour))
	require.Equal(t, int64(-2), floorDays(-25*time.Hour))
}
