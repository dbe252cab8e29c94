package domain

import (
	"context"
	"time"
)

// UserStore reads user progression state. GetUser returns nil, nil when the
// user does not exist.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// HistoryReader supplies the read side of workouts and sets.
type HistoryReader interface {
	// SetHistory returns, per exercise, the user's committed sets ordered by
	// workout date ascending then set number.
	SetHistory(ctx context.Context, userID string, exerciseIDs []string) (map[string][]HistoricalSet, error)
	// WorkoutOwner returns the owning user ID, or "" when the workout is absent.
	WorkoutOwner(ctx context.Context, workoutID string) (string, error)
	// Workout returns the workout with its exercises and sets ordered for
	// display, or nil when absent.
	Workout(ctx context.Context, workoutID string) (*Workout, error)
	// HypeState counts the workout's hypes and reports whether viewerID gave one.
	HypeState(ctx context.Context, workoutID, viewerID string) (count int, hyped bool, err error)
	// CohortActivity returns the existing users among userIDs with their
	// workouts performed inside window.
	CohortActivity(ctx context.Context, userIDs []string, window Window) ([]CohortMember, error)
}

// LedgerReader reads the append-only XP ledger.
type LedgerReader interface {
	LedgerTotal(ctx context.Context, userID string) (int64, error)
	ListLedger(ctx context.Context, userID string, cursor *Cursor, limit int) ([]LedgerEntry, *Cursor, error)
}

// WorkoutCommit is everything one workout submission writes. It must be
// applied atomically.
type WorkoutCommit struct {
	Workout Workout
	// ExpectedVersion is the user version the commit was computed from; a
	// mismatch fails the commit with ErrStaleUser.
	ExpectedVersion int64
	XP              int64
	Streak          int
	LastWorkoutAt   time.Time
	Ledger          []LedgerEntry

	// Reporting fields carried into emitted events.
	Transition StreakTransition
	LevelUp    bool
	NewLevel   int
}

// HypeToggle describes one toggle request. Reward is applied only if the
// toggle creates the hype.
type HypeToggle struct {
	WorkoutID  string
	GiverID    string
	ReceiverID string
	Reward     LedgerEntry
	At         time.Time
}

// Repository is the durable store the engine runs against.
type Repository interface {
	UserStore
	HistoryReader
	LedgerReader

	// CommitWorkout inserts the workout and its sets, appends the ledger
	// entries and writes the user's XP and streak in one transaction.
	CommitWorkout(ctx context.Context, commit WorkoutCommit) error
	// ToggleHype deletes the (workout, giver) hype if present and reports
	// false; otherwise creates it, credits Reward to the receiver and reports
	// true. A lost creation race fails with ErrHypeRace.
	ToggleHype(ctx context.Context, toggle HypeToggle) (bool, error)
}

// FriendGraph resolves the social cohort of a user. It is an external
// collaborator; the engine never mutates friendships.
type FriendGraph interface {
	// Friends returns the IDs of userID's accepted friends.
	Friends(ctx context.Context, userID string) ([]string, error)
}
