package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger reasons.
const (
	ReasonWorkout      = "workout"
	ReasonHypeReceived = "hype_received"
)

// StreakReason is the ledger reason of a streak milestone bonus.
func StreakReason(days int) string {
	return fmt.Sprintf("streak_%d", days)
}

// WorkoutRewards builds the ledger entries for one workout completion: the
// base reward plus one entry per milestone reached. Amounts are never folded
// together so every point stays attributable.
func (r Rewards) WorkoutRewards(userID string, outcome StreakOutcome, at time.Time) []LedgerEntry {
	entries := make([]LedgerEntry, 0, 1+len(outcome.Milestones))
	entries = append(entries, newLedgerEntry(userID, r.CompleteWorkout, ReasonWorkout, at))
	if outcome.Transition != StreakContinue {
		return entries
	}
	for _, m := range outcome.Milestones {
		entries = append(entries, newLedgerEntry(userID, m.Bonus, StreakReason(m.Days), at))
	}
	return entries
}

// HypeReward builds the single ledger entry granted to a workout owner when a
// hype is created. Removing a hype grants and revokes nothing.
func (r Rewards) HypeReward(receiverID string, at time.Time) LedgerEntry {
	return newLedgerEntry(receiverID, r.ReceiveHype, ReasonHypeReceived, at)
}

// SumLedger totals entry amounts.
func SumLedger(entries []LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

func newLedgerEntry(userID string, amount int64, reason string, at time.Time) LedgerEntry {
	return LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: at,
	}
}
