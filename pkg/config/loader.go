// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nkorotkov/refbot/pkg/logger"
)

// Load reads configuration from YAML files and environment variables,
// validates it, and returns the resulting Config along with the viper
// instance used to read it.
func Load() (*Config, *viper.Viper, error) {
	// missing env files are fine, real deployments use the environment
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

// Watch re-applies the log level whenever the config file changes on disk.
func Watch(v *viper.Viper, log *slog.Logger) {
	if v == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		level := v.GetString("log.level")
		logger.SetLevel(level)
		log.Info("config file changed, log level re-applied",
			slog.String("file", event.Name),
			slog.String("level", level),
		)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("bot.mode", "longpoll")
	v.SetDefault("bot.timeout", "10s")

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", "5432")
	v.SetDefault("storage.sslmode", "disable")

	v.SetDefault("reward.amount", 500)
	v.SetDefault("reward.max_tx_attempts", 5)

	v.SetDefault("ratelimit.per_window", 20)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("dedupe.ttl", "24h")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
}
