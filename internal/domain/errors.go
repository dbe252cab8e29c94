package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every engine failure wraps exactly one of these so callers can
// classify it with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

var (
	// ErrUserNotFound is returned when the acting or receiving user has no record.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrWorkoutNotFound is returned when a referenced workout does not exist.
	ErrWorkoutNotFound = fmt.Errorf("workout %w", ErrNotFound)
	// ErrSelfHype rejects a hype on the giver's own workout.
	ErrSelfHype = fmt.Errorf("%w: cannot hype your own workout", ErrForbidden)
	// ErrStaleUser reports a lost race on the per-user versioned update.
	ErrStaleUser = fmt.Errorf("%w: user state changed concurrently", ErrConflict)
	// ErrHypeRace reports a lost race on the unique (workout, giver) pair.
	ErrHypeRace = fmt.Errorf("%w: concurrent hype on the same workout", ErrConflict)
	// ErrNegativeXP flags a negative XP value reaching the progression model.
	ErrNegativeXP = fmt.Errorf("%w: negative xp", ErrInvalidState)
	// ErrLedgerMismatch flags a user whose cached XP differs from the ledger sum.
	ErrLedgerMismatch = fmt.Errorf("%w: xp does not match ledger", ErrInvalidState)
)

// RetryOnConflict runs fn and runs it exactly once more when the first attempt
// lost a concurrency race. fn must re-read any state it depends on.
func RetryOnConflict(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, ErrConflict) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fn(ctx)
}
