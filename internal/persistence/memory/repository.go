// Package memory provides an in-process Repository for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Chirraaa/gymbros/internal/domain"
)

const defaultLedgerLimit = 50

type hypeKey struct {
	workoutID string
	giverID   string
}

// Repository stores engine state in memory. A single lock serialises writes,
// and the version and uniqueness checks mirror the Postgres store so
// conflicts surface the same way.
type Repository struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	workouts map[string]domain.Workout
	// order keeps workout IDs in commit order.
	order   []string
	hypes   map[hypeKey]domain.Hype
	ledger  []domain.LedgerEntry
	friends map[string]map[string]struct{}
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		users:    make(map[string]domain.User),
		workouts: make(map[string]domain.Workout),
		hypes:    make(map[hypeKey]domain.Hype),
		friends:  make(map[string]map[string]struct{}),
	}
}

// PutUser creates or replaces a user profile. XP and streak are taken as is;
// seeding a non-zero XP without ledger entries breaks the ledger invariant.
func (r *Repository) PutUser(user domain.User) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putUserLocked(user)
}

func (r *Repository) putUserLocked(user domain.User) domain.User {
	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	if user.Username == "" {
		user.Username = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.users[user.ID] = user
	return user
}

// CreateUser inserts a profile with zero XP. An existing ID is a conflict.
func (r *Repository) CreateUser(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("%w: user %s already exists", domain.ErrConflict, user.ID)
	}
	user.XP, user.Streak, user.LastWorkoutAt, user.Version = 0, 0, nil, 0
	r.putUserLocked(user)
	return nil
}

// ListUserIDs returns every user ID in a stable order.
func (r *Repository) ListUserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AddFriendship records an accepted friendship in both directions.
func (r *Repository) AddFriendship(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pair := range [][2]string{{a, b}, {b, a}} {
		set, ok := r.friends[pair[0]]
		if !ok {
			set = make(map[string]struct{})
			r.friends[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
}

// GetUser implements domain.UserStore.
func (r *Repository) GetUser(_ context.Context, userID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// SetHistory implements domain.HistoryReader.
func (r *Repository) SetHistory(_ context.Context, userID string, exerciseIDs []string) (map[string][]domain.HistoricalSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]struct{}, len(exerciseIDs))
	for _, id := range exerciseIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[string][]domain.HistoricalSet)
	for _, w := range r.userWorkouts(userID) {
		for _, ex := range w.Exercises {
			if _, ok := wanted[ex.ExerciseID]; !ok {
				continue
			}
			sets := append([]domain.ExerciseSet(nil), ex.Sets...)
			sort.SliceStable(sets, func(i, j int) bool { return sets[i].SetNumber < sets[j].SetNumber })
			for _, set := range sets {
				out[ex.ExerciseID] = append(out[ex.ExerciseID], domain.HistoricalSet{
					WorkoutID:        w.ID,
					WorkoutName:      w.Name,
					PerformedAt:      w.PerformedAt,
					ExerciseID:       ex.ExerciseID,
					SetNumber:        set.SetNumber,
					Reps:             set.Reps,
					Weight:           set.Weight,
					IsPersonalRecord: set.IsPersonalRecord,
				})
			}
		}
	}
	for id := range out {
		sets := out[id]
		sort.SliceStable(sets, func(i, j int) bool {
			return sets[i].PerformedAt.Before(sets[j].PerformedAt)
		})
	}
	return out, nil
}

// WorkoutOwner implements domain.HistoryReader.
func (r *Repository) WorkoutOwner(_ context.Context, workoutID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.workouts[workoutID].UserID, nil
}

// Workout implements domain.HistoryReader.
func (r *Repository) Workout(_ context.Context, workoutID string) (*domain.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workouts[workoutID]
	if !ok {
		return nil, nil
	}
	exercises := make([]domain.WorkoutExercise, 0, len(w.Exercises))
	for _, ex := range w.Exercises {
		ex.Sets = append([]domain.ExerciseSet(nil), ex.Sets...)
		sort.SliceStable(ex.Sets, func(i, j int) bool { return ex.Sets[i].SetNumber < ex.Sets[j].SetNumber })
		exercises = append(exercises, ex)
	}
	sort.SliceStable(exercises, func(i, j int) bool { return exercises[i].OrderIndex < exercises[j].OrderIndex })
	w.Exercises = exercises
	return &w, nil
}

// HypeState implements domain.HistoryReader.
func (r *Repository) HypeState(_ context.Context, workoutID, viewerID string) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key := range r.hypes {
		if key.workoutID == workoutID {
			count++
		}
	}
	_, hyped := r.hypes[hypeKey{workoutID: workoutID, giverID: viewerID}]
	return count, hyped, nil
}

// CohortActivity implements domain.HistoryReader.
func (r *Repository) CohortActivity(_ context.Context, userIDs []string, window domain.Window) ([]domain.CohortMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]domain.CohortMember, 0, len(userIDs))
	for _, id := range userIDs {
		user, ok := r.users[id]
		if !ok {
			continue
		}
		member := domain.CohortMember{User: user}
		for _, w := range r.userWorkouts(id) {
			if window.Contains(w.PerformedAt) {
				member.Workouts = append(member.Workouts, w)
			}
		}
		members = append(members, member)
	}
	return members, nil
}

// LedgerTotal implements domain.LedgerReader.
func (r *Repository) LedgerTotal(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, e := range r.ledger {
		if e.UserID == userID {
			total += e.Amount
		}
	}
	return total, nil
}

// ListLedger implements domain.LedgerReader.
func (r *Repository) ListLedger(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LedgerEntry, *domain.Cursor, error) {
	if limit <= 0 {
		limit = defaultLedgerLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0)
	for _, e := range r.ledger {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return ledgerAfter(entries[i], entries[j].CreatedAt, entries[j].ID)
	})

	results := make([]domain.LedgerEntry, 0, limit)
	for _, e := range entries {
		if cursor != nil && !ledgerBefore(e, cursor) {
			continue
		}
		results = append(results, e)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// CommitWorkout implements domain.Repository.
func (r *Repository) CommitWorkout(_ context.Context, commit domain.WorkoutCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[commit.Workout.UserID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if user.Version != commit.ExpectedVersion {
		return domain.ErrStaleUser
	}

	user.XP = commit.XP
	user.Streak = commit.Streak
	last := commit.LastWorkoutAt
	user.LastWorkoutAt = &last
	user.Version++
	r.users[user.ID] = user

	r.workouts[commit.Workout.ID] = commit.Workout
	r.order = append(r.order, commit.Workout.ID)
	r.ledger = append(r.ledger, commit.Ledger...)
	return nil
}

// ToggleHype implements domain.Repository.
func (r *Repository) ToggleHype(_ context.Context, toggle domain.HypeToggle) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hypeKey{workoutID: toggle.WorkoutID, giverID: toggle.GiverID}
	if _, exists := r.hypes[key]; exists {
		delete(r.hypes, key)
		return false, nil
	}

	receiver, ok := r.users[toggle.ReceiverID]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	r.hypes[key] = domain.Hype{
		ID:         uuid.NewString(),
		WorkoutID:  toggle.WorkoutID,
		GiverID:    toggle.GiverID,
		ReceiverID: toggle.ReceiverID,
		CreatedAt:  toggle.At,
	}
	receiver.XP += toggle.Reward.Amount
	receiver.Version++
	r.users[receiver.ID] = receiver
	r.ledger = append(r.ledger, toggle.Reward)
	return true, nil
}

// Friends implements domain.FriendGraph.
func (r *Repository) Friends(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.friends[userID]))
	for id := range r.friends[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repository) userWorkouts(userID string) []domain.Workout {
	out := make([]domain.Workout, 0)
	for _, id := range r.order {
		if w := r.workouts[id]; w.UserID == userID {
			out = append(out, w)
		}
	}
	return out
}

// ledgerAfter orders entries newest first, breaking time ties by ID.
func ledgerAfter(e domain.LedgerEntry, createdAt time.Time, id string) bool {
	if !e.CreatedAt.Equal(createdAt) {
		return e.CreatedAt.After(createdAt)
	}
	return e.ID > id
}

func ledgerBefore(e domain.LedgerEntry, cursor *domain.Cursor) bool {
	return !ledgerAfter(e, cursor.CreatedAt, cursor.ID) && !(e.CreatedAt.Equal(cursor.CreatedAt) && e.ID == cursor.ID)
}
