package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxReplays  = 5
	defaultReplayDelay = time.Minute
	maxReplayDelay     = time.Hour
)

// ReplayResult counts what one replay pass did with the dead-lettered events.
type ReplayResult struct {
	Requeued    int
	Deferred    int
	Quarantined int
}

// Replayer moves dead-lettered events back into the outbox so the dispatcher
// retries them. Entries that keep failing are quarantined after maxRetries.
type Replayer struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewReplayer constructs a Replayer. Non-positive arguments fall back to
// five retries and a one minute base delay.
func NewReplayer(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *Replayer {
	if maxRetries <= 0 {
		maxRetries = defaultMaxReplays
	}
	if baseDelay <= 0 {
		baseDelay = defaultReplayDelay
	}
	return &Replayer{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce handles up to batchSize due entries. Per-entry failures are joined
// into the returned error; the other entries are still processed.
func (r *Replayer) RunOnce(ctx context.Context, batchSize int) (ReplayResult, error) {
	var result ReplayResult

	rows, err := r.pool.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at, dlq_id
          LIMIT $1`, batchSize)
	if err != nil {
		return result, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		outcome, handleErr := r.handle(ctx, entry)
		if handleErr != nil {
			err = errors.Join(err, fmt.Errorf("dlq entry %d: %w", entry.ID, handleErr))
			continue
		}
		switch outcome {
		case replayRequeued:
			result.Requeued++
		case replayDeferred:
			result.Deferred++
		case replayQuarantined:
			result.Quarantined++
		}
		replayCounter.WithLabelValues(string(outcome)).Inc()
	}
	return result, err
}

type replayOutcome string

const (
	replayRequeued    replayOutcome = "requeued"
	replayDeferred    replayOutcome = "deferred"
	replayQuarantined replayOutcome = "quarantined"
)

func (r *Replayer) handle(ctx context.Context, entry dlqEntry) (outcome replayOutcome, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if entry.RetryCount >= r.maxRetries {
		if _, err = tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			"retry limit reached", entry.ID,
		); err != nil {
			return "", err
		}
		return replayQuarantined, tx.Commit(ctx)
	}

	if requeueErr := requeue(ctx, tx, entry); requeueErr != nil {
		delay := r.backoff(entry.RetryCount + 1)
		if _, err = tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + make_interval(secs => $1),
                    reason = $2
              WHERE dlq_id = $3`,
			delay.Seconds(), requeueErr.Error(), entry.ID,
		); err != nil {
			return "", err
		}
		return replayDeferred, tx.Commit(ctx)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return "", err
	}
	return replayRequeued, tx.Commit(ctx)
}

// backoff doubles baseDelay per attempt, capped at one hour.
func (r *Replayer) backoff(attempt int) time.Duration {
	if attempt > 16 {
		return maxReplayDelay
	}
	return min(time.Duration(1<<uint(attempt-1))*r.baseDelay, maxReplayDelay)
}

// requeue inserts the entry into the outbox inside a savepoint so a failed
// insert leaves the surrounding transaction usable.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) (err error) {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for event %d", entry.EventID)
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			sp.Rollback(ctx)
		}
	}()

	if _, err = sp.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic,
		entry.SchemaSubject, entry.PartitionKey, entry.Payload,
		fmt.Sprintf("dlq:%d:%s", entry.ID, entry.EventType),
	); err != nil {
		return err
	}
	return sp.Commit(ctx)
}

type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
