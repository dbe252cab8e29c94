package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Chirraaa/gymbros/internal/domain"
	"github.com/Chirraaa/gymbros/internal/events"
	"github.com/Chirraaa/gymbros/internal/observability"
)

// Repository provides Postgres-backed persistence for the engine and its outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectUser = `SELECT user_id, username, xp, streak, last_workout_at, height_cm, weight_kg, version, created_at
        FROM users`

// GetUser loads a user's progression state.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE user_id=$1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a profile with zero XP. An existing ID is a conflict.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	const stmt = `INSERT INTO users (user_id, username, height_cm, weight_kg) VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, stmt, user.ID, user.Username, user.HeightCm, user.WeightKg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s already exists", domain.ErrConflict, user.ID)
	}
	return nil
}

// ListUserIDs returns every user ID in a stable order.
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SetHistory returns committed sets for the requested exercises.
func (r *Repository) SetHistory(ctx context.Context, userID string, exerciseIDs []string) (map[string][]domain.HistoricalSet, error) {
	const query = `SELECT w.workout_id, w.name, w.performed_at, we.exercise_id, s.set_number, s.reps, s.weight, s.is_personal_record
        FROM exercise_sets s
        JOIN workout_exercises we ON we.workout_exercise_id = s.workout_exercise_id
        JOIN workouts w ON w.workout_id = we.workout_id
        WHERE w.user_id=$1 AND we.exercise_id = ANY($2)
        ORDER BY w.performed_at, w.created_at, w.workout_id, we.order_index, s.set_number`

	out := make(map[string][]domain.HistoricalSet)
	if len(exerciseIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, query, userID, exerciseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var set domain.HistoricalSet
		if err := rows.Scan(&set.WorkoutID, &set.WorkoutName, &set.PerformedAt, &set.ExerciseID, &set.SetNumber, &set.Reps, &set.Weight, &set.IsPersonalRecord); err != nil {
			return nil, err
		}
		out[set.ExerciseID] = append(out[set.ExerciseID], set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkoutOwner returns the owning user ID or "" when the workout does not exist.
func (r *Repository) WorkoutOwner(ctx context.Context, workoutID string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM workouts WHERE workout_id=$1`, workoutID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return owner, nil
}

// CohortActivity loads the cohort's users and the workouts they performed inside window.
func (r *Repository) CohortActivity(ctx context.Context, userIDs []string, window domain.Window) ([]domain.CohortMember, error) {
	if len(userIDs) == 0 {
		return []domain.CohortMember{}, nil
	}

	rows, err := r.pool.Query(ctx, selectUser+` WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	members := make([]domain.CohortMember, 0, len(userIDs))
	index := make(map[string]int, len(userIDs))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[user.ID] = len(members)
		members = append(members, domain.CohortMember{User: *user})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, selectWorkoutTree+`
        WHERE w.user_id = ANY($1) AND w.performed_at >= $2 AND w.performed_at <= $3
        ORDER BY w.performed_at, w.workout_id, we.order_index, s.set_number`,
		userIDs, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	err = collectWorkouts(rows, func(w domain.Workout) {
		pos := index[w.UserID]
		members[pos].Workouts = append(members[pos].Workouts, w)
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Workout implements domain.HistoryReader.
func (r *Repository) Workout(ctx context.Context, workoutID string) (*domain.Workout, error) {
	rows, err := r.pool.Query(ctx, selectWorkoutTree+`
        WHERE w.workout_id = $1
        ORDER BY we.order_index, s.set_number`, workoutID)
	if err != nil {
		return nil, err
	}
	var found *domain.Workout
	if err := collectWorkouts(rows, func(w domain.Workout) { found = &w }); err != nil {
		return nil, err
	}
	return found, nil
}

// HypeState implements domain.HistoryReader.
func (r *Repository) HypeState(ctx context.Context, workoutID, viewerID string) (int, bool, error) {
	var (
		count int
		hyped bool
	)
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(BOOL_OR(giver_id = $2), FALSE) FROM hypes WHERE workout_id = $1`,
		workoutID, viewerID,
	).Scan(&count, &hyped)
	if err != nil {
		return 0, false, err
	}
	return count, hyped, nil
}

const selectWorkoutTree = `SELECT w.workout_id, w.user_id, w.name, w.performed_at, w.duration_min, COALESCE(w.notes, ''), w.created_at,
            we.workout_exercise_id, we.exercise_id, we.order_index,
            s.set_id, s.set_number, s.reps, s.weight, s.is_personal_record
        FROM workouts w
        LEFT JOIN workout_exercises we ON we.workout_id = w.workout_id
        LEFT JOIN exercise_sets s ON s.workout_exercise_id = we.workout_exercise_id`

// collectWorkouts folds joined workout/exercise/set rows, which must be
// grouped by workout, into workouts passed to emit in row order.
func collectWorkouts(rows pgx.Rows, emit func(domain.Workout)) error {
	defer rows.Close()

	var current *domain.Workout
	flush := func() {
		if current != nil {
			emit(*current)
			current = nil
		}
	}
	for rows.Next() {
		var (
			w          domain.Workout
			exRowID    *string
			exerciseID *string
			orderIndex *int
			setID      *string
			setNumber  *int
			reps       *int
			weight     *float64
			pr         *bool
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.PerformedAt, &w.DurationMin, &w.Notes, &w.CreatedAt,
			&exRowID, &exerciseID, &orderIndex, &setID, &setNumber, &reps, &weight, &pr); err != nil {
			return err
		}
		if current == nil || current.ID != w.ID {
			flush()
			current = &w
		}
		if exRowID == nil {
			continue
		}
		n := len(current.Exercises)
		if n == 0 || current.Exercises[n-1].ID != *exRowID {
			current.Exercises = append(current.Exercises, domain.WorkoutExercise{
				ID:         *exRowID,
				ExerciseID: *exerciseID,
				OrderIndex: *orderIndex,
			})
			n++
		}
		if setID == nil {
			continue
		}
		current.Exercises[n-1].Sets = append(current.Exercises[n-1].Sets, domain.ExerciseSet{
			ID:               *setID,
			SetNumber:        *setNumber,
			Reps:             *reps,
			Weight:           *weight,
			IsPersonalRecord: *pr,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	flush()
	return nil
}

// LedgerTotal sums a user's ledger entries.
func (r *Repository) LedgerTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM xp_ledger WHERE user_id=$1`, userID).Scan(&total)
	return total, err
}

// ListLedger pages ledger entries newest first.
func (r *Repository) ListLedger(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LedgerEntry, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []interface{}{userID, limit}
	query := `SELECT entry_id, user_id, amount, reason, created_at FROM xp_ledger WHERE user_id=$1`
	if cursor != nil {
		query += ` AND (created_at, entry_id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, entry_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// CommitWorkout persists the workout, its ledger entries and the user's new
// progression state, and records outbox events inside a single transaction.
func (r *Repository) CommitWorkout(ctx context.Context, commit domain.WorkoutCommit) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	w := commit.Workout
	const updateUser = `UPDATE users SET xp=$2, streak=$3, last_workout_at=$4, version=version+1
        WHERE user_id=$1 AND version=$5`
	tag, err := tx.Exec(ctx, updateUser, w.UserID, commit.XP, commit.Streak, commit.LastWorkoutAt, commit.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`, w.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			err = domain.ErrUserNotFound
			return err
		}
		err = domain.ErrStaleUser
		return err
	}

	const insertWorkout = `INSERT INTO workouts (workout_id, user_id, name, performed_at, duration_min, notes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err = tx.Exec(ctx, insertWorkout, w.ID, w.UserID, w.Name, w.PerformedAt, w.DurationMin, nullIfEmpty(w.Notes), w.CreatedAt); err != nil {
		return err
	}

	prs := 0
	for _, ex := range w.Exercises {
		const insertExercise = `INSERT INTO workout_exercises (workout_exercise_id, workout_id, exercise_id, order_index)
            VALUES ($1,$2,$3,$4)`
		if _, err = tx.Exec(ctx, insertExercise, ex.ID, w.ID, ex.ExerciseID, ex.OrderIndex); err != nil {
			return err
		}
		for _, set := range ex.Sets {
			const insertSet = `INSERT INTO exercise_sets (set_id, workout_exercise_id, set_number, reps, weight, is_personal_record)
                VALUES ($1,$2,$3,$4,$5,$6)`
			if _, err = tx.Exec(ctx, insertSet, set.ID, ex.ID, set.SetNumber, set.Reps, set.Weight, set.IsPersonalRecord); err != nil {
				return err
			}
			if set.IsPersonalRecord {
				prs++
			}
		}
	}

	if err = r.appendLedger(ctx, tx, commit.Ledger); err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, w.ID, w.ID, events.TypeWorkoutCompleted, w.UserID, events.WorkoutCompleted{
		WorkoutID:        w.ID,
		UserID:           w.UserID,
		PerformedAt:      w.PerformedAt,
		XPGained:         domain.SumLedger(commit.Ledger),
		XP:               commit.XP,
		Streak:           commit.Streak,
		StreakTransition: string(commit.Transition),
		LevelUp:          commit.LevelUp,
		NewLevel:         commit.NewLevel,
		PersonalRecords:  prs,
		OccurredAt:       w.CreatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordWorkoutPersisted(w.CreatedAt)
	return nil
}

// ToggleHype removes the giver's hype when present; otherwise it creates the
// hype and credits the receiver. The unique (workout, giver) constraint
// decides concurrent creations.
func (r *Repository) ToggleHype(ctx context.Context, toggle domain.HypeToggle) (hyped bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var removed string
	err = tx.QueryRow(ctx, `DELETE FROM hypes WHERE workout_id=$1 AND giver_id=$2 RETURNING hype_id`,
		toggle.WorkoutID, toggle.GiverID).Scan(&removed)
	switch {
	case err == nil:
		hyped = false
	case errors.Is(err, pgx.ErrNoRows):
		hyped, err = r.createHype(ctx, tx, toggle)
		if err != nil {
			return false, err
		}
	default:
		return false, err
	}

	if err = r.insertOutbox(ctx, tx, toggle.WorkoutID, toggle.Reward.ID, events.TypeHypeToggled, toggle.WorkoutID, events.HypeToggled{
		WorkoutID:  toggle.WorkoutID,
		GiverID:    toggle.GiverID,
		ReceiverID: toggle.ReceiverID,
		Hyped:      hyped,
		OccurredAt: toggle.At,
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return hyped, nil
}

func (r *Repository) createHype(ctx context.Context, tx pgx.Tx, toggle domain.HypeToggle) (bool, error) {
	const insertHype = `INSERT INTO hypes (hype_id, workout_id, giver_id, receiver_id, created_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT ON CONSTRAINT hypes_workout_giver_key DO NOTHING
        RETURNING hype_id`

	var created string
	err := tx.QueryRow(ctx, insertHype, toggle.Reward.ID, toggle.WorkoutID, toggle.GiverID, toggle.ReceiverID, toggle.At).Scan(&created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrHypeRace
		}
		return false, err
	}

	tag, err := tx.Exec(ctx, `UPDATE users SET xp=xp+$2, version=version+1 WHERE user_id=$1`, toggle.ReceiverID, toggle.Reward.Amount)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, domain.ErrUserNotFound
	}
	if err := r.appendLedger(ctx, tx, []domain.LedgerEntry{toggle.Reward}); err != nil {
		return false, err
	}
	return true, nil
}

// Friends returns the accepted friends of userID.
func (r *Repository) Friends(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT user_b_id FROM friendships WHERE user_a_id=$1
        UNION
        SELECT user_a_id FROM friendships WHERE user_b_id=$1
        ORDER BY 1`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// appendLedger writes ledger entries and mirrors each as an xp.awarded event.
func (r *Repository) appendLedger(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	const stmt = `INSERT INTO xp_ledger (entry_id, user_id, amount, reason, created_at) VALUES ($1,$2,$3,$4,$5)`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, stmt, e.ID, e.UserID, e.Amount, e.Reason, e.CreatedAt); err != nil {
			return err
		}
		if err := r.insertOutbox(ctx, tx, e.UserID, e.ID, events.TypeXPAwarded, e.UserID, events.XPAwarded{
			EntryID:    e.ID,
			UserID:     e.UserID,
			Amount:     e.Amount,
			Reason:     e.Reason,
			OccurredAt: e.CreatedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// insertOutbox records an event for the dispatcher. dedupeID identifies the
// change that produced it; aggregateID groups events of the same entity.
func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, dedupeID, eventType, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s", dedupeID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.XP, &u.Streak, &u.LastWorkoutAt, &u.HeightCm, &u.WeightKg, &u.Version, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeWorkoutCompleted: {
		AggregateType: "workout",
		Topic:         "gymbros_workouts",
		SchemaSubject: "gymbros_workouts-value",
	},
	events.TypeXPAwarded: {
		AggregateType: "xp_ledger",
		Topic:         "gymbros_xp",
		SchemaSubject: "gymbros_xp-value",
	},
	events.TypeHypeToggled: {
		AggregateType: "hype",
		Topic:         "gymbros_hypes",
		SchemaSubject: "gymbros_hypes-value",
	},
}
