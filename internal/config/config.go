package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/unimail.db"`

	// IMAP sessions
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	IMAPOpTimeout   time.Duration `env:"IMAP_OP_TIMEOUT" envDefault:"30s"`
	LoginRate       float64       `env:"LOGIN_RATE_PER_SEC" envDefault:"10"` // logins per second per IMAP host
	LoginBurst      int           `env:"LOGIN_BURST" envDefault:"50"`
	TLSSkipVerify   bool          `env:"TLS_SKIP_VERIFY" envDefault:"false"`

	// Aggregation
	AggregateTimeout       time.Duration `env:"AGGREGATE_TIMEOUT" envDefault:"60s"`
	MaxParallelConnections int           `env:"MAX_PARALLEL_CONNECTIONS" envDefault:"4"`
	DefaultPageSize        int           `env:"DEFAULT_PAGE_SIZE" envDefault:"10"`

	// Folder candidate overrides (YAML), optional
	FoldersFile string `env:"FOLDERS_FILE"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required,notEmpty"`

	// Metrics endpoint, e.g. ":9090"; empty disables it
	MetricsAddr string `env:"METRICS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	// 32 bytes for AES-256
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}
	if c.MaxParallelConnections < 1 {
		return fmt.Errorf("MAX_PARALLEL_CONNECTIONS must be positive, got %d", c.MaxParallelConnections)
	}
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive, got %d", c.DefaultPageSize)
	}
	if c.IMAPOpTimeout <= 0 || c.IMAPDialTimeout <= 0 {
		return fmt.Errorf("IMAP timeouts must be positive")
	}
	if c.AggregateTimeout < 0 {
		return fmt.Errorf("AGGREGATE_TIMEOUT must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}
