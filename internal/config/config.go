package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	Port          string        `env:"LOTMARKET_PORT" envDefault:"8080"`
	DBPath        string        `env:"LOTMARKET_DB_PATH" envDefault:"./lotmarket.db"`
	BotSecret     string        `env:"LOTMARKET_BOT_SECRET"`
	CleanupSecret string        `env:"LOTMARKET_CLEANUP_SECRET"`
	SessionTTL    time.Duration `env:"LOTMARKET_SESSION_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"LOTMARKET_SWEEP_INTERVAL" envDefault:"30m"`
	// TLSCertDir enables TLS. A self-signed certificate is generated
	// there when none exists. Empty means plain HTTP.
	TLSCertDir string `env:"LOTMARKET_TLS_CERT_DIR"`
	// DevMode disables signature verification of identity assertions.
	// Must never be set in production.
	DevMode bool `env:"LOTMARKET_DEV_MODE" envDefault:"false"`
}

var ErrMissingBotSecret = errors.New("bot secret is not configured")

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that cannot default. Dev mode waives the
// bot secret because assertions are not verified there.
func (c *Config) Validate() error {
	if c.BotSecret == "" && !c.DevMode {
		return ErrMissingBotSecret
	}
	return nil
}
