// Command sweeper garbage-collects idempotency markers past the retention
// window. It is meant to run on a schedule, independent of the webhook path.
package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"portraitbot/internal/adapter/repo"
	"portraitbot/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to connect database")
	}
	defer pool.Close()

	updates := repo.NewProcessedUpdateRepository(pool)
	cutoff := time.Now().Add(-cfg.UpdateRetention)
	deleted, err := updates.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: sweep failed")
	}
	logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("sweeper: done")
}
