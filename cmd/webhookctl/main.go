// Command webhookctl registers or removes the bot's webhook with the chat
// platform.
package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portraitbot/internal/infra"
	"portraitbot/internal/telegram"
)

func main() {
	remove := flag.Bool("delete", false, "delete the registered webhook instead of setting it")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	client, err := telegram.NewClient(telegram.Options{
		Token:   cfg.TelegramToken,
		BaseURL: cfg.TelegramBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("webhookctl: failed to configure telegram client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *remove {
		if err := client.DeleteWebhook(ctx); err != nil {
			logger.Fatal().Err(err).Msg("webhookctl: delete webhook failed")
		}
		logger.Info().Msg("webhookctl: webhook deleted")
		return
	}

	if cfg.PublicBaseURL == "" {
		logger.Fatal().Msg("webhookctl: PUBLIC_BASE_URL is required")
	}
	url := strings.TrimRight(cfg.PublicBaseURL, "/") + "/v1/telegram/webhook"
	if err := client.SetWebhook(ctx, url, cfg.WebhookSecret); err != nil {
		logger.Fatal().Err(err).Msg("webhookctl: set webhook failed")
	}
	logger.Info().Str("url", url).Msg("webhookctl: webhook registered")
}
