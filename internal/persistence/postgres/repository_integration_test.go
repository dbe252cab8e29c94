//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Chirraaa/gymbros/internal/domain"
	"github.com/Chirraaa/gymbros/internal/testsupport"
)

func newIntegrationService(repo *Repository, now func() time.Time) *domain.Service {
	return domain.NewService(repo, domain.DefaultRules(),
		domain.WithClock(now),
		domain.WithFriendGraph(repo),
	)
}

func squat(userID string, weights ...float64) domain.SubmitWorkoutInput {
	sets := make([]domain.SetInput, 0, len(weights))
	for i, w := range weights {
		sets = append(sets, domain.SetInput{SetNumber: i + 1, Reps: 5, Weight: w})
	}
	return domain.SubmitWorkoutInput{
		UserID:    userID,
		Name:      "legs",
		Exercises: []domain.ExerciseInput{{ExerciseID: "squat", Sets: sets}},
	}
}

func TestRepositoryWorkoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	repo := NewRepository(pool)

	height, weight := 182.0, 80.0
	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: "ana", Username: "ana", HeightCm: &height, WeightKg: &weight}))
	require.ErrorIs(t, repo.CreateUser(ctx, domain.User{ID: "ana", Username: "ana-2"}), domain.ErrConflict)

	missing, err := repo.GetUser(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)

	now := time.Date(2024, time.May, 14, 10, 0, 0, 0, time.UTC)
	service := newIntegrationService(repo, func() time.Time { return now })

	first, err := service.SubmitWorkout(ctx, squat("ana", 100, 110))
	require.NoError(t, err)
	now = now.Add(24 * time.Hour)
	second, err := service.SubmitWorkout(ctx, squat("ana", 105))
	require.NoError(t, err)
	require.False(t, second.Sets[0].IsPersonalRecord)

	user, err := repo.GetUser(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, int64(100), user.XP)
	require.Equal(t, 2, user.Streak)
	require.Equal(t, int64(2), user.Version)
	require.NotNil(t, user.HeightCm)

	history, err := repo.SetHistory(ctx, "ana", []string{"squat", "bench"})
	require.NoError(t, err)
	require.Len(t, history["squat"], 3)
	require.Empty(t, history["bench"])
	require.Equal(t, first.WorkoutID, history["squat"][0].WorkoutID)
	require.True(t, history["squat"][1].IsPersonalRecord)

	window := domain.WeekWindow(now, time.UTC)
	members, err := repo.CohortActivity(ctx, []string{"ana", "ghost"}, window)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Len(t, members[0].Workouts, 2)
	require.Equal(t, 5*100.0+5*110.0, members[0].Workouts[0].Volume())

	owner, err := repo.WorkoutOwner(ctx, second.WorkoutID)
	require.NoError(t, err)
	require.Equal(t, "ana", owner)
	owner, err = repo.WorkoutOwner(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, owner)

	stored, err := repo.Workout(ctx, first.WorkoutID)
	require.NoError(t, err)
	require.Equal(t, "legs", stored.Name)
	require.Equal(t, 2, stored.SetCount())
	require.Equal(t, []int{1, 2}, []int{stored.Exercises[0].Sets[0].SetNumber, stored.Exercises[0].Sets[1].SetNumber})
	absent, err := repo.Workout(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, absent)

	count, hyped, err := repo.HypeState(ctx, first.WorkoutID, "ana")
	require.NoError(t, err)
	require.Zero(t, count)
	require.False(t, hyped)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1`, first.WorkoutID).Scan(&outboxRows))
	require.Equal(t, 1, outboxRows)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='xp.awarded'`).Scan(&outboxRows))
	require.Equal(t, 2, outboxRows)

	require.NoError(t, service.VerifyLedger(ctx, "ana"))
}

func TestRepositoryRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	repo := NewRepository(pool)
	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: "ana", Username: "ana"}))

	now := time.Now().UTC()
	commit := func(version int64) error {
		entry := domain.DefaultRules().Rewards.HypeReward("ana", now)
		entry.Reason = domain.ReasonWorkout
		return repo.CommitWorkout(ctx, domain.WorkoutCommit{
			Workout: domain.Workout{
				ID:          uuid.NewString(),
				UserID:      "ana",
				PerformedAt: now,
				CreatedAt:   now,
			},
			ExpectedVersion: version,
			XP:              5,
			Streak:          1,
			LastWorkoutAt:   now,
			Ledger:          []domain.LedgerEntry{entry},
			Transition:      domain.StreakReset,
			NewLevel:        1,
		})
	}

	require.NoError(t, commit(0))
	require.ErrorIs(t, commit(0), domain.ErrStaleUser)

	var workouts int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM workouts`).Scan(&workouts))
	require.Equal(t, 1, workouts, "rolled back commit must not leave a workout behind")

	total, err := repo.LedgerTotal(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, int64(5), total)

	err = repo.CommitWorkout(ctx, domain.WorkoutCommit{Workout: domain.Workout{ID: uuid.NewString(), UserID: "ghost", PerformedAt: now, CreatedAt: now}})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestRepositoryHypeToggle(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	repo := NewRepository(pool)
	for _, id := range []string{"ana", "ben", "cam"} {
		require.NoError(t, repo.CreateUser(ctx, domain.User{ID: id, Username: id}))
	}
	_, err := pool.Exec(ctx, `INSERT INTO friendships (user_a_id, user_b_id) VALUES ('ana','ben'), ('cam','ana')`)
	require.NoError(t, err)

	service := newIntegrationService(repo, time.Now)
	workout, err := service.SubmitWorkout(ctx, squat("ana", 60))
	require.NoError(t, err)

	result, err := service.ToggleHype(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.True(t, result.Hyped)

	count, hyped, err := repo.HypeState(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.True(t, hyped)
	count, hyped, err = repo.HypeState(ctx, workout.WorkoutID, "cam")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.False(t, hyped)

	detail, err := service.Workout(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.Equal(t, "ana", detail.OwnerUsername)
	require.Equal(t, 1, detail.HypeCount)
	require.True(t, detail.ViewerHyped)
	require.Len(t, detail.Workout.Exercises, 1)
	require.Equal(t, "squat", detail.Workout.Exercises[0].ExerciseID)
	require.True(t, detail.Workout.Exercises[0].Sets[0].IsPersonalRecord)

	result, err = service.ToggleHype(ctx, workout.WorkoutID, "ben")
	require.NoError(t, err)
	require.False(t, result.Hyped)

	user, err := repo.GetUser(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, int64(55), user.XP)

	var hypeEvents int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='hype.toggled'`).Scan(&hypeEvents))
	require.Equal(t, 2, hypeEvents)

	friends, err := repo.Friends(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, []string{"ben", "cam"}, friends)

	audits, err := service.AuditLedger(ctx, []string{"ana", "ben", "cam"})
	require.NoError(t, err)
	for _, a := range audits {
		require.NoError(t, a.Err)
	}
}

func TestRepositoryConcurrentHypeCreatesOnce(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	repo := NewRepository(pool)
	for _, id := range []string{"ana", "ben"} {
		require.NoError(t, repo.CreateUser(ctx, domain.User{ID: id, Username: id}))
	}
	service := newIntegrationService(repo, time.Now)
	workout, err := service.SubmitWorkout(ctx, squat("ana", 60))
	require.NoError(t, err)

	const attempts = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []bool
		errs    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.ToggleHype(ctx, workout.WorkoutID, "ben")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res.Hyped)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, domain.ErrConflict)
	}

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM hypes WHERE workout_id=$1`, workout.WorkoutID).Scan(&rows))
	require.LessOrEqual(t, rows, 1)

	var rewards int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM xp_ledger WHERE user_id='ana' AND reason=$1`, domain.ReasonHypeReceived).Scan(&rewards))
	created := 0
	for _, hyped := range results {
		if hyped {
			created++
		}
	}
	require.Equal(t, created, rewards)
	require.NoError(t, service.VerifyLedger(ctx, "ana"))
}

func TestRepositoryConcurrentSubmissionsWithRetry(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	repo := NewRepository(pool)
	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: "ana", Username: "ana"}))
	service := newIntegrationService(repo, time.Now)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- domain.RetryOnConflict(ctx, func(ctx context.Context) error {
				_, err := service.SubmitWorkout(ctx, squat("ana", 80))
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	user, err := repo.GetUser(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, int64(100), user.XP)
	require.NoError(t, service.VerifyLedger(ctx, "ana"))
}

func TestRepositoryListLedgerPages(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(t, ctx)
	repo := NewRepository(pool)
	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: "ana", Username: "ana"}))

	now := time.Date(2024, time.May, 13, 8, 0, 0, 0, time.UTC)
	service := newIntegrationService(repo, func() time.Time { return now })
	for i := 0; i < 3; i++ {
		_, err := service.SubmitWorkout(ctx, squat("ana", 50))
		require.NoError(t, err)
		now = now.Add(24 * time.Hour)
	}

	seen := map[string]bool{}
	var (
		cursor *domain.Cursor
		total  int64
		pages  int
	)
	for {
		entries, next, err := repo.ListLedger(ctx, "ana", cursor, 2)
		require.NoError(t, err)
		pages++
		for i, e := range entries {
			require.False(t, seen[e.ID])
			seen[e.ID] = true
			total += e.Amount
			if i > 0 {
				require.False(t, e.CreatedAt.After(entries[i-1].CreatedAt))
			}
		}
		if next == nil {
			break
		}
		cursor = next
	}
	require.Len(t, seen, 4)
	// a full last page is followed by one empty page
	require.Equal(t, 3, pages)
	require.Equal(t, int64(180), total)
}
