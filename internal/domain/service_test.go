package domain_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Chirraaa/gymbros/internal/domain"
	"github.com/Chirraaa/gymbros/internal/persistence/memory"
)

var monday = time.Date(2024, time.May, 13, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu        sync.Mutex
	workouts  []domain.WorkoutResult
	hypes     []domain.HypeResult
	conflicts []string
	boards    int
}

func (r *recorder) WorkoutCommitted(result domain.WorkoutResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workouts = append(r.workouts, result)
}

func (r *recorder) HypeToggled(result domain.HypeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hypes = append(r.hypes, result)
}

func (r *recorder) Conflict(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = append(r.conflicts, operation)
}

func (r *recorder) LeaderboardBuilt(time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards++
}

type harness struct {
	repo     *memory.Repository
	clock    *clock
	recorder *recorder
	service  *domain.Service
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	return newHarnessWithRepo(t, memory.NewRepository(), users...)
}

func newHarnessWithRepo(t *testing.T, repo *memory.Repository, users ...string) *harness {
	t.Helper()
	h := &harness{repo: repo, clock: &clock{now: monday}, recorder: &recorder{}}
	for _, id := range users {
		repo.PutUser(domain.User{ID: id, Username: id})
	}
	h.service = h.newService(repo)
	return h
}

func (h *harness) newService(repo domain.Repository) *domain.Service {
	return domain.NewService(repo, domain.DefaultRules(),
		domain.WithClock(h.clock.Now),
		domain.WithRecorder(h.recorder),
		domain.WithFriendGraph(h.repo),
		domain.WithLogger(log.New(io.Discard, "", 0)),
	)
}

func lift(userID, exerciseID string, weights ...float64) domain.SubmitWorkoutInput {
	sets := make([]domain.SetInput, 0, len(weights))
	for i, w := range weights {
		sets = append(sets, domain.SetInput{SetNumber: i + 1, Reps: 5, Weight: w})
	}
	return domain.SubmitWorkoutInput{
		UserID:    userID,
		Name:      "session",
		Exercises: []domain.ExerciseInput{{ExerciseID: exerciseID, Sets: sets}},
	}
}

func (h *harness) submit(t *testing.T, input domain.SubmitWorkoutInput) *domain.WorkoutResult {
	t.Helper()
	result, err := h.service.SubmitWorkout(context.Background(), input)
	require.NoError(t, err)
	return result
}

func (h *harness) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := h.repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return *u
}

func (h *harness) hypeCount(t *testing.T, workoutID string) int {
	t.Helper()
	count, _, err := h.repo.HypeState(context.Background(), workoutID, "")
	require.NoError(t, err)
	return count
}

func (h *harness) requireLedgerConsistent(t *testing.T, ids ...string) {
	t.Helper()
	audits, err := h.service.AuditLedger(context.Background(), ids)
	require.NoError(t, err)
	for _, a := range audits {
		require.NoErrorf(t, a.Err, "user %s", a.UserID)
	}
}

func TestSubmitWorkoutFirstSession(t *testing.T) {
	h := newHarness(t, "ana")

	result := h.submit(t, lift("ana", "bench", 60, 70))
	require.NotEmpty(t, result.WorkoutID)
	require.Equal(t, int64(50), result.XPGained)
	require.Equal(t, int64(50), result.XP)
	require.True(t, result.LevelUp)
	require.Equal(t, 2, result.NewLevel)
	require.Equal(t, 1, result.Streak)
	require.Equal(t, domain.StreakReset, result.Transition)
	require.Equal(t, 2, result.PersonalRecords())
	require.Len(t, result.Ledger, 1)

	u := h.user(t, "ana")
	require.Equal(t, int64(50), u.XP)
	require.Equal(t, 1, u.Streak)
	require.NotNil(t, u.LastWorkoutAt)
	require.True(t, monday.Equal(*u.LastWorkoutAt))
	require.Equal(t, int64(1), u.Version)

	require.Len(t, h.recorder.workouts, 1)
	h.requireLedgerConsistent(t, "ana")
}

func TestSubmitWorkoutUnknownUserHasNoSideEffects(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.SubmitWorkout(context.Background(), lift("ghost", "bench", 60))
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	require.ErrorIs(t, err, domain.ErrNotFound)

	total, err := h.repo.LedgerTotal(context.Background(), "ghost")
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, h.recorder.workouts)
}

func TestSubmitWorkoutStreakAndMilestone(t *testing.T) {
	h := newHarness(t, "ana")

	h.submit(t, lift("ana", "squat", 100))
	h.clock.Advance(24 * time.Hour)
	second := h.submit(t, lift("ana", "squat", 100))
	require.Equal(t, domain.StreakContinue, second.Transition)
	require.Equal(t, 2, second.Streak)
	require.Equal(t, int64(50), second.XPGained)

	h.clock.Advance(24 * time.Hour)
	third := h.submit(t, lift("ana", "squat", 100))
	require.Equal(t, 3, third.Streak)
	require.Equal(t, int64(80), third.XPGained)
	require.Len(t, third.Ledger, 2)
	require.Equal(t, "streak_3", third.Ledger[1].Reason)

	h.clock.Advance(3 * time.Hour)
	same := h.submit(t, lift("ana", "squat", 100))
	require.Equal(t, domain.StreakHold, same.Transition)
	require.Equal(t, 3, same.Streak)
	require.Equal(t, int64(50), same.XPGained)

	h.clock.Advance(72 * time.Hour)
	reset := h.submit(t, lift("ana", "squat", 100))
	require.Equal(t, domain.StreakReset, reset.Transition)
	require.Equal(t, 1, reset.Streak)

	require.Equal(t, int64(280), h.user(t, "ana").XP)
	h.requireLedgerConsistent(t, "ana")
}

func TestSubmitWorkoutPersonalRecordsFollowHistory(t *testing.T) {
	h := newHarness(t, "ana")

	var flags []bool
	for _, w := range []float64{100, 80, 120} {
		result := h.submit(t, lift("ana", "deadlift", w))
		flags = append(flags, result.Sets[0].IsPersonalRecord)
		h.clock.Advance(time.Hour)
	}
	require.Equal(t, []bool{true, false, true}, flags)

	bodyweight := h.submit(t, lift("ana", "pullup", 0))
	require.False(t, bodyweight.Sets[0].IsPersonalRecord)

	// another user's history never counts
	h.repo.PutUser(domain.User{ID: "ben"})
	other := h.submit(t, lift("ben", "deadlift", 90))
	require.True(t, other.Sets[0].IsPersonalRecord)
}

func TestSubmitWorkoutKeepsPerformedAt(t *testing.T) {
	h := newHarness(t, "ana")
	input := lift("ana", "bench", 50)
	input.PerformedAt = monday.Add(-2 * time.Hour)

	result := h.submit(t, input)
	history, err := h.service.ExerciseHistory(context.Background(), "ana", "bench")
	require.NoError(t, err)
	require.Equal(t, result.WorkoutID, history.Sessions[0].WorkoutID)
	require.True(t, input.PerformedAt.Equal(history.Sessions[0].PerformedAt))
}

func TestToggleHypeRewardsOnce(t *testing.T) {
	h := newHarness(t, "ana", "ben")
	workout := h.submit(t, lift("ana", "bench", 60))

	first, err := h.service.ToggleHype(context.Background(), workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.True(t, first.Hyped)
	require.Equal(t, int64(5), first.XPAwarded)
	require.Equal(t, "ana", first.ReceiverID)
	require.Equal(t, int64(55), h.user(t, "ana").XP)

	second, err := h.service.ToggleHype(context.Background(), workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.False(t, second.Hyped)
	require.Zero(t, second.XPAwarded)
	// removal does not claw back the reward
	require.Equal(t, int64(55), h.user(t, "ana").XP)
	require.Zero(t, h.hypeCount(t, workout.WorkoutID))

	third, err := h.service.ToggleHype(context.Background(), workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.True(t, third.Hyped)
	require.Equal(t, int64(60), h.user(t, "ana").XP)

	require.Len(t, h.recorder.hypes, 3)
	h.requireLedgerConsistent(t, "ana", "ben")
}

func TestWorkoutDetailTracksViewerHype(t *testing.T) {
	h := newHarness(t, "ana", "ben", "cy")
	input := lift("ana", "bench", 60, 80)
	input.Exercises = append(input.Exercises, domain.ExerciseInput{
		ExerciseID: "squat",
		Sets:       []domain.SetInput{{SetNumber: 2, Reps: 3, Weight: 0}, {SetNumber: 1, Reps: 8, Weight: 0}},
	})
	workout := h.submit(t, input)
	ctx := context.Background()

	detail, err := h.service.Workout(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.Equal(t, "ana", detail.Workout.UserID)
	require.Equal(t, "ana", detail.OwnerUsername)
	require.Zero(t, detail.HypeCount)
	require.False(t, detail.ViewerHyped)
	require.False(t, detail.ViewerIsOwner)
	require.Len(t, detail.Workout.Exercises, 2)
	require.Equal(t, "bench", detail.Workout.Exercises[0].ExerciseID)
	require.True(t, detail.Workout.Exercises[0].Sets[0].IsPersonalRecord)
	require.True(t, detail.Workout.Exercises[0].Sets[1].IsPersonalRecord)
	require.Equal(t, 1, detail.Workout.Exercises[1].Sets[0].SetNumber)
	require.False(t, detail.Workout.Exercises[1].Sets[0].IsPersonalRecord)
	require.Equal(t, 4, detail.Workout.SetCount())
	require.True(t, detail.Workout.HasPersonalRecord())
	require.Equal(t, 700.0, detail.Workout.Volume())

	_, err = h.service.ToggleHype(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)

	detail, err = h.service.Workout(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.Equal(t, 1, detail.HypeCount)
	require.True(t, detail.ViewerHyped)

	detail, err = h.service.Workout(ctx, workout.WorkoutID, "cy")
	require.NoError(t, err)
	require.Equal(t, 1, detail.HypeCount)
	require.False(t, detail.ViewerHyped)

	detail, err = h.service.Workout(ctx, workout.WorkoutID, "ana")
	require.NoError(t, err)
	require.True(t, detail.ViewerIsOwner)

	_, err = h.service.ToggleHype(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	detail, err = h.service.Workout(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.Zero(t, detail.HypeCount)
	require.False(t, detail.ViewerHyped)

	_, err = h.service.Workout(ctx, "missing", "ben")
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)
}

func TestToggleHypeRejections(t *testing.T) {
	h := newHarness(t, "ana", "ben")
	workout := h.submit(t, lift("ana", "bench", 60))

	_, err := h.service.ToggleHype(context.Background(), workout.WorkoutID, "ana")
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.service.ToggleHype(context.Background(), workout.WorkoutID, "ben")
	require.NoError(t, err)

	// still forbidden once the workout carries hypes
	_, err = h.service.ToggleHype(context.Background(), workout.WorkoutID, "ana")
	require.ErrorIs(t, err, domain.ErrSelfHype)

	_, err = h.service.ToggleHype(context.Background(), "missing", "ben")
	require.ErrorIs(t, err, domain.ErrWorkoutNotFound)

	_, err = h.service.ToggleHype(context.Background(), workout.WorkoutID, "ghost")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	require.Equal(t, int64(55), h.user(t, "ana").XP)
	require.Equal(t, 1, h.hypeCount(t, workout.WorkoutID))
}

func TestConcurrentHypesFromDistinctGivers(t *testing.T) {
	givers := []string{"g1", "g2", "g3", "g4", "g5", "g6", "g7", "g8"}
	h := newHarness(t, append([]string{"ana"}, givers...)...)
	workout := h.submit(t, lift("ana", "bench", 60))

	var wg sync.WaitGroup
	errs := make(chan error, len(givers))
	for _, g := range givers {
		wg.Add(1)
		go func(giver string) {
			defer wg.Done()
			_, err := h.service.ToggleHype(context.Background(), workout.WorkoutID, giver)
			errs <- err
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, len(givers), h.hypeCount(t, workout.WorkoutID))
	require.Equal(t, int64(50+5*len(givers)), h.user(t, "ana").XP)
	h.requireLedgerConsistent(t, "ana")
}

// racingRepo bumps the user's version right before the first commit, as a
// concurrent writer would.
type racingRepo struct {
	*memory.Repository
	once sync.Once
}

func (r *racingRepo) CommitWorkout(ctx context.Context, commit domain.WorkoutCommit) error {
	r.once.Do(func() {
		u, _ := r.GetUser(ctx, commit.Workout.UserID)
		u.Version++
		r.PutUser(*u)
	})
	return r.Repository.CommitWorkout(ctx, commit)
}

func TestSubmitWorkoutStaleReadConflicts(t *testing.T) {
	base := memory.NewRepository()
	h := newHarnessWithRepo(t, base, "ana")
	service := h.newService(&racingRepo{Repository: base})

	_, err := service.SubmitWorkout(context.Background(), lift("ana", "bench", 60))
	require.ErrorIs(t, err, domain.ErrStaleUser)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Equal(t, []string{"submit_workout"}, h.recorder.conflicts)
	require.Zero(t, h.user(t, "ana").XP)

	service = h.newService(&racingRepo{Repository: base})
	var result *domain.WorkoutResult
	err = domain.RetryOnConflict(context.Background(), func(ctx context.Context) error {
		var err error
		result, err = service.SubmitWorkout(ctx, lift("ana", "bench", 60))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), result.XP)
	h.requireLedgerConsistent(t, "ana")
}

func TestConcurrentSubmissionsKeepLedgerInvariant(t *testing.T) {
	h := newHarness(t, "ana")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- domain.RetryOnConflict(context.Background(), func(ctx context.Context) error {
				_, err := h.service.SubmitWorkout(ctx, lift("ana", "bench", 60))
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	u := h.user(t, "ana")
	require.Equal(t, int64(100), u.XP)
	require.Equal(t, 1, u.Streak)
	h.requireLedgerConsistent(t, "ana")
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := domain.RetryOnConflict(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrStaleUser
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Equal(t, 2, calls)

	calls = 0
	err = domain.RetryOnConflict(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrSelfHype
	})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	err = domain.RetryOnConflict(ctx, func(context.Context) error {
		calls++
		return domain.ErrHypeRace
	})
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, calls)
}

func TestLeaderboardCohort(t *testing.T) {
	h := newHarness(t, "ana", "ben", "cam")
	h.repo.AddFriendship("ana", "ben")

	h.submit(t, lift("ana", "bench", 100))
	h.submit(t, lift("ben", "bench", 100))
	h.submit(t, lift("ben", "bench", 100))

	board, err := h.service.Leaderboard(context.Background(), domain.LeaderboardQuery{
		CohortUserIDs: []string{"ana", "ben", "ben", "ghost", "cam"},
	})
	require.NoError(t, err)
	require.Len(t, board.Entries, 3)
	require.Equal(t, "ben", board.Entries[0].UserID)
	require.Equal(t, 55.0, board.Entries[0].Score)
	require.Equal(t, "ana", board.Entries[1].UserID)
	require.Equal(t, "cam", board.Entries[2].UserID)
	require.Zero(t, board.Entries[2].Score)
	require.True(t, time.Date(2024, time.May, 13, 0, 0, 0, 0, time.UTC).Equal(board.Window.Start))
	require.Equal(t, 1, h.recorder.boards)

	nextWeek, err := h.service.Leaderboard(context.Background(), domain.LeaderboardQuery{
		CohortUserIDs: []string{"ana"},
		Now:           monday.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	require.Zero(t, nextWeek.Entries[0].WeeklyWorkouts)
	require.Equal(t, 5.0, nextWeek.Entries[0].Score)

	cohort, err := h.service.FriendCohort(context.Background(), "ana")
	require.NoError(t, err)
	require.Equal(t, []string{"ana", "ben"}, cohort)
}

func TestLeaderboardLocation(t *testing.T) {
	repo := memory.NewRepository()
	repo.PutUser(domain.User{ID: "ana"})
	berlin := time.FixedZone("CEST", 2*60*60)
	clk := &clock{now: time.Date(2024, time.May, 19, 23, 0, 0, 0, time.UTC)} // Monday 01:00 in Berlin
	service := domain.NewService(repo, domain.DefaultRules(),
		domain.WithClock(clk.Now),
		domain.WithLocation(berlin),
		domain.WithLogger(log.New(io.Discard, "", 0)),
	)

	board, err := service.Leaderboard(context.Background(), domain.LeaderboardQuery{CohortUserIDs: []string{"ana"}})
	require.NoError(t, err)
	require.True(t, time.Date(2024, time.May, 19, 22, 0, 0, 0, time.UTC).Equal(board.Window.Start))
}

func TestProgress(t *testing.T) {
	h := newHarness(t)
	height, weight := 170.0, 65.0
	h.repo.PutUser(domain.User{ID: "ana", HeightCm: &height, WeightKg: &weight})
	h.repo.PutUser(domain.User{ID: "ben"})

	for i := 0; i < 3; i++ {
		h.submit(t, lift("ana", "bench", 60))
		h.clock.Advance(24 * time.Hour)
	}

	p, err := h.service.Progress(context.Background(), "ana")
	require.NoError(t, err)
	require.Equal(t, int64(180), p.XP)
	require.Equal(t, 2, p.Level)
	require.Equal(t, int64(200), p.NextLevelXP)
	require.InDelta(t, 86.67, p.LevelProgress, 0.01)
	require.Equal(t, "Iron", p.Rank.Name)
	require.Equal(t, 3, p.Streak)
	require.NotNil(t, p.BMI)
	require.InDelta(t, 22.49, *p.BMI, 0.01)
	require.Equal(t, domain.BMINormal, p.BMICategory)

	p, err = h.service.Progress(context.Background(), "ben")
	require.NoError(t, err)
	require.Equal(t, 1, p.Level)
	require.Nil(t, p.BMI)
	require.Nil(t, p.LastWorkoutAt)

	_, err = h.service.Progress(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)

	h.repo.PutUser(domain.User{ID: "neg", XP: -1})
	_, err = h.service.Progress(context.Background(), "neg")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestLedgerAndAudit(t *testing.T) {
	h := newHarness(t, "ana", "ben")
	workout := h.submit(t, lift("ana", "bench", 60))
	_, err := h.service.ToggleHype(context.Background(), workout.WorkoutID, "ben")
	require.NoError(t, err)

	entries, next, err := h.service.Ledger(context.Background(), "ana", nil, 10)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, entries, 2)
	require.Equal(t, h.user(t, "ana").XP, domain.SumLedger(entries))

	_, _, err = h.service.Ledger(context.Background(), "ghost", nil, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, h.service.VerifyLedger(context.Background(), "ana"))

	h.repo.PutUser(domain.User{ID: "drift", XP: 30})
	err = h.service.VerifyLedger(context.Background(), "drift")
	require.ErrorIs(t, err, domain.ErrLedgerMismatch)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	audits, err := h.service.AuditLedger(context.Background(), []string{"ana", "drift", "ghost", "ana"})
	require.NoError(t, err)
	require.Len(t, audits, 3)
	require.NoError(t, audits[0].Err)
	require.Equal(t, int64(55), audits[0].LedgerTotal)
	require.ErrorIs(t, audits[1].Err, domain.ErrLedgerMismatch)
	require.Equal(t, int64(30), audits[1].XP)
	require.Zero(t, audits[1].LedgerTotal)
	require.ErrorIs(t, audits[2].Err, domain.ErrUserNotFound)
}

func TestExerciseHistoryRequiresUser(t *testing.T) {
	h := newHarness(t, "ana")
	_, err := h.service.ExerciseHistory(context.Background(), "ghost", "bench")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	history, err := h.service.ExerciseHistory(context.Background(), "ana", "bench")
	require.NoError(t, err)
	require.Zero(t, history.TotalSessions)
}
