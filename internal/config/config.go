package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"shelflend/internal/core/domain/models"
)

// Config holds all environmentally dependent settings for the lending engine.
type Config struct {
	APIPort  int    `env:"SL_PORT" envDefault:"8080"`
	LogLevel string `env:"SL_LOG_LEVEL" envDefault:"info"`

	DatabasePath string `env:"SL_DB_PATH" envDefault:"shelflend.db"`

	AccountID    string `env:"SL_ACCOUNT_ID" envDefault:"default"`
	LoansURL     string `env:"SL_LOANS_URL"`
	OPDSUsername string `env:"SL_OPDS_USERNAME"`
	OPDSPassword string `env:"SL_OPDS_PASSWORD"`

	FeedTimeout time.Duration `env:"SL_FEED_TIMEOUT" envDefault:"30s"`
	DRMTimeout  time.Duration `env:"SL_DRM_TIMEOUT" envDefault:"60s"`

	SyncConcurrency int  `env:"SL_SYNC_CONCURRENCY" envDefault:"5"`
	SyncOnStart     bool `env:"SL_SYNC_ON_START" envDefault:"true"`

	BreakerThreshold int           `env:"SL_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerReset     time.Duration `env:"SL_BREAKER_RESET" envDefault:"30s"`
}

// Validate ensures that all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("SL_PORT must be between 1 and 65535")
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SL_SYNC_CONCURRENCY must be at least 1")
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("SL_FEED_TIMEOUT must be positive")
	}
	if c.DRMTimeout <= 0 {
		return fmt.Errorf("SL_DRM_TIMEOUT must be positive")
	}
	if c.SyncOnStart && c.LoansURL == "" {
		return fmt.Errorf("SL_LOANS_URL is required when SL_SYNC_ON_START is true")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("SL_BREAKER_THRESHOLD must be at least 1")
	}
	return nil
}

// Load reads settings from the environment (and a .env file when present).
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Account builds the patron account the engine operates on. Credentials is
// nil when no username is configured.
func (c *Config) Account() *models.Account {
	account := &models.Account{
		ID:       c.AccountID,
		LoansURL: c.LoansURL,
	}
	if c.OPDSUsername != "" {
		account.Credentials = &models.Credentials{
			Username: c.OPDSUsername,
			Password: c.OPDSPassword,
		}
	}
	return account
}
