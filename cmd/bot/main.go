package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"portraitbot/internal/adapter/repo"
	"portraitbot/internal/bot"
	"portraitbot/internal/http/handlers"
	"portraitbot/internal/http/httpapi"
	"portraitbot/internal/infra"
	"portraitbot/internal/provider"
	"portraitbot/internal/storage"
	"portraitbot/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	store, staticDir, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	tg, err := telegram.NewClient(telegram.Options{
		Token:   cfg.TelegramToken,
		BaseURL: cfg.TelegramBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure telegram client")
	}

	gen, err := provider.NewClient(provider.Options{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation provider")
	}

	sessions := repo.NewSessionRepository(pool)
	jobs := repo.NewJobRepository(pool)
	updates := repo.NewProcessedUpdateRepository(pool)

	controller := bot.NewController(sessions, jobs, tg, store, gen, logger, bot.Config{
		DownloadTimeout: cfg.DownloadTimeout,
		SignedURLTTL:    cfg.SignedURLTTL,
		CallbackBaseURL: cfg.PublicBaseURL,
	})
	reconciler := bot.NewReconciler(jobs, sessions, tg, store, nil, logger, cfg.SignedURLTTL)

	app := &handlers.App{
		Cfg:        cfg,
		Logger:     logger,
		Updates:    updates,
		Sessions:   sessions,
		Jobs:       jobs,
		Controller: controller,
		Reconciler: reconciler,
	}

	router := httpapi.NewRouter(app, httpapi.Options{StaticDir: staticDir})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("bot listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, string, error) {
	if cfg.StorageBackend == "gcs" {
		store, err := storage.NewGCSStore(ctx, storage.GCSOptions{
			Bucket:          cfg.StorageBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		return store, "", err
	}
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, cfg.StoragePath, nil
}
