// Package cli implements gymbrosctl, the operator command line for the
// gymbros engine.
package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Chirraaa/gymbros/internal/config"
	"github.com/Chirraaa/gymbros/internal/domain"
	"github.com/Chirraaa/gymbros/internal/persistence/postgres"
)

func init() {
	rootCmd.PersistentFlags().String("postgres-url", "", "Postgres connection string (default $POSTGRES_URL)")
	rootCmd.PersistentFlags().String("rules", "", "TOML rules file (default $RULES_FILE)")
}

var rootCmd = &cobra.Command{
	Use:          "gymbrosctl",
	Short:        "Operate the gymbros progression engine",
	SilenceUsage: true,
}

// Execute runs gymbrosctl with os.Args.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// store is the repository surface the commands use.
type store interface {
	domain.Repository
	domain.FriendGraph
	CreateUser(ctx context.Context, user domain.User) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

type backend struct {
	store   store
	service *domain.Service
	close   func()
}

// openBackend connects the commands to their store. Tests swap it for an
// in-memory one.
var openBackend = openPostgresBackend

func openPostgresBackend(cmd *cobra.Command) (*backend, error) {
	cfg := config.Load()
	url, _ := cmd.Flags().GetString("postgres-url")
	if url == "" {
		url = cfg.PostgresURL
	}

	rules, err := loadRules(cmd)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid LEADERBOARD_TIMEZONE %q: %w", cfg.LeaderboardTimezone, err)
	}

	pool, err := pgxpool.New(cmd.Context(), url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo := postgres.NewRepository(pool)
	service := domain.NewService(repo, rules,
		domain.WithLocation(loc),
		domain.WithFriendGraph(repo),
		domain.WithLogger(log.New(cmd.ErrOrStderr(), "[gymbrosctl] ", log.LstdFlags)),
	)
	return &backend{store: repo, service: service, close: pool.Close}, nil
}

func loadRules(cmd *cobra.Command) (domain.Rules, error) {
	path, _ := cmd.Flags().GetString("rules")
	if path == "" {
		path = config.Load().RulesFile
	}
	return config.LoadRules(path)
}

// splitList parses a comma separated flag value.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
