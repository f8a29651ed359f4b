package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the referral bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Log       LogConfig       `mapstructure:"log"`
	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Reward    RewardConfig    `mapstructure:"reward"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Dedupe    DedupeConfig    `mapstructure:"dedupe"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	Mode          string        `mapstructure:"mode" validate:"oneof=webhook longpoll"`
	WebhookListen string        `mapstructure:"webhook_listen"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// FrontendURL is the web app opened by the welcome message button.
	FrontendURL string `mapstructure:"frontend_url"`
}

// StorageConfig selects and configures the record store backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`

	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c StorageConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig configures the optional Redis connection used for duplicate
// suppression and rate limiting.
type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// RewardConfig tunes the referral reward engine.
type RewardConfig struct {
	Amount        int64 `mapstructure:"amount"`
	MaxTxAttempts int   `mapstructure:"max_tx_attempts"`
}

// RateLimitConfig configures the per-user update limiter.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerWindow int           `mapstructure:"per_window"`
	Window    time.Duration `mapstructure:"window"`
}

// DedupeConfig configures duplicate-update suppression.
type DedupeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig configures the metrics/health HTTP server.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}
