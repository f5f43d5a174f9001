package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for the application.
type Config struct {
	// Remote store settings.
	APIBaseURL  string `env:"MEALMATE_API_URL"`
	APIKey      string `env:"MEALMATE_API_KEY"` // "id:secret" format
	HouseholdID string `env:"MEALMATE_HOUSEHOLD_ID"`
	DeviceName  string `env:"MEALMATE_DEVICE_NAME"`

	RequestTimeout time.Duration `env:"MEALMATE_REQUEST_TIMEOUT" envDefault:"10s"`

	// Local state settings.
	DataDir     string        `env:"MEALMATE_DATA_DIR" envDefault:"data"`
	QuietPeriod time.Duration `env:"MEALMATE_QUIET_PERIOD" envDefault:"500ms"`

	// Query cache settings.
	CacheStaleAfter  time.Duration `env:"MEALMATE_CACHE_STALE_AFTER" envDefault:"5m"`
	CacheRetention   time.Duration `env:"MEALMATE_CACHE_RETENTION" envDefault:"24h"`
	CacheRetries     int           `env:"MEALMATE_CACHE_RETRIES" envDefault:"3"`
	SnapshotMaxBytes int           `env:"MEALMATE_SNAPSHOT_MAX_BYTES" envDefault:"262144"`

	// Telegram Config (Optional for CLI, required for Bot)
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramWebhookURL  string `env:"TELEGRAM_WEBHOOK_URL"`
	TelegramAllowUserID int64  `env:"TELEGRAM_ALLOW_USER_ID"`
	ListenAddr          string `env:"MEALMATE_LISTEN_ADDR" envDefault:":8080"`
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("MEALMATE_API_URL environment variable not set")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("MEALMATE_API_KEY environment variable not set")
	}
	if cfg.HouseholdID == "" {
		return nil, fmt.Errorf("MEALMATE_HOUSEHOLD_ID environment variable not set")
	}
	if cfg.QuietPeriod <= 0 {
		return nil, fmt.Errorf("MEALMATE_QUIET_PERIOD must be positive")
	}

	return cfg, nil
}

// MirrorDBPath returns the path of the local mirror database file.
func (c *Config) MirrorDBPath() string {
	return filepath.Join(c.DataDir, "mirror.db")
}
