package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Chirraaa/gymbros/internal/api"
	"github.com/Chirraaa/gymbros/internal/auth"
	"github.com/Chirraaa/gymbros/internal/config"
	"github.com/Chirraaa/gymbros/internal/domain"
	"github.com/Chirraaa/gymbros/internal/observability"
	"github.com/Chirraaa/gymbros/internal/outbox"
	persistence "github.com/Chirraaa/gymbros/internal/persistence/postgres"
	httptransport "github.com/Chirraaa/gymbros/internal/transport/http"
)

func main() {
	cfg := config.Load()

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Fatalf("failed to load rules: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid LEADERBOARD_TIMEZONE %q: %v", cfg.LeaderboardTimezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(outbox.NewPostgresStore(pool), producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	service := domain.NewService(repo, rules,
		domain.WithLocation(loc),
		domain.WithFriendGraph(repo),
		domain.WithRecorder(observability.NewEngineRecorder()),
	)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	handler := api.NewHandler(service, nil)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler.Router(authMiddleware.Wrap))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("gymbros api listening on %s (leaderboard tz=%s)", cfg.HTTPAddress, loc)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}
