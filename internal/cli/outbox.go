package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Chirraaa/gymbros/internal/config"
	"github.com/Chirraaa/gymbros/internal/outbox"
)

func init() {
	rootCmd.AddCommand(outboxCmd)
	outboxCmd.AddCommand(outboxReplayCmd)
	outboxReplayCmd.Flags().Int("batch", 100, "Maximum dead-lettered events handled per pass")
	outboxReplayCmd.Flags().Int("max-retries", 5, "Replays before an event is quarantined")
	outboxReplayCmd.Flags().Duration("base-delay", 0, "Backoff after the first failed replay, doubled per attempt (default 1m)")
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and repair the event outbox",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Move due dead-lettered events back into the outbox",
	Args:  cobra.NoArgs,
	RunE:  runOutboxReplay,
}

type dlqReplayer interface {
	RunOnce(ctx context.Context, batchSize int) (outbox.ReplayResult, error)
}

// openReplayer connects the replay command to the outbox tables. Tests swap it.
var openReplayer = func(cmd *cobra.Command) (dlqReplayer, func(), error) {
	url, _ := cmd.Flags().GetString("postgres-url")
	if url == "" {
		url = config.Load().PostgresURL
	}
	pool, err := pgxpool.New(cmd.Context(), url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	baseDelay, _ := cmd.Flags().GetDuration("base-delay")
	return outbox.NewReplayer(pool, maxRetries, baseDelay), pool.Close, nil
}

func runOutboxReplay(cmd *cobra.Command, args []string) error {
	batch, _ := cmd.Flags().GetInt("batch")
	if batch <= 0 {
		return fmt.Errorf("--batch must be positive, got %d", batch)
	}

	replayer, closeFn, err := openReplayer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := replayer.RunOnce(cmd.Context(), batch)
	fmt.Fprintf(cmd.OutOrStdout(), "requeued %d, deferred %d, quarantined %d\n",
		result.Requeued, result.Deferred, result.Quarantined)
	if err != nil {
		return fmt.Errorf("replay dead letters: %w", err)
	}
	return nil
}
