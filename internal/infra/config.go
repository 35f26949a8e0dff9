package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	PublicBaseURL      string
	TelegramToken      string
	TelegramBaseURL    string
	WebhookSecret      string
	ProviderBaseURL    string
	ProviderAPIKey     string
	StorageBackend     string
	StorageBucket      string
	StoragePath        string
	StorageBaseURL     string
	GCSCredentialsFile string
	DownloadTimeout    time.Duration
	SignedURLTTL       time.Duration
	UpdateRetention    time.Duration
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// Production reports whether the service runs in production mode. In
// production the webhook shared secret is mandatory; the handler fails closed
// when it is missing.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PublicBaseURL:      os.Getenv("PUBLIC_BASE_URL"),
		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramBaseURL:    getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		WebhookSecret:      os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		ProviderBaseURL:    os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:     os.Getenv("PROVIDER_API_KEY"),
		StorageBackend:     getEnv("STORAGE_BACKEND", "filesystem"),
		StorageBucket:      os.Getenv("STORAGE_BUCKET"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GCSCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		DownloadTimeout:    time.Second * time.Duration(getEnvInt("DOWNLOAD_TIMEOUT_SECONDS", 45)),
		SignedURLTTL:       time.Hour * time.Duration(getEnvInt("SIGNED_URL_TTL_HOURS", 24)),
		UpdateRetention:    time.Hour * time.Duration(getEnvInt("UPDATE_RETENTION_HOURS", 48)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.StorageBackend == "gcs" && cfg.StorageBucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET is required when STORAGE_BACKEND=gcs")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
