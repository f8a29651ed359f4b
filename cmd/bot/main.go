package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq"

	"github.com/nkorotkov/refbot/internal/bot"
	"github.com/nkorotkov/refbot/internal/database"
	"github.com/nkorotkov/refbot/internal/dedupe"
	"github.com/nkorotkov/refbot/internal/health"
	"github.com/nkorotkov/refbot/internal/lifecycle"
	"github.com/nkorotkov/refbot/internal/ratelimit"
	"github.com/nkorotkov/refbot/internal/referral"
	"github.com/nkorotkov/refbot/internal/repository"
	"github.com/nkorotkov/refbot/internal/storage"
	"github.com/nkorotkov/refbot/pkg/config"
	"github.com/nkorotkov/refbot/pkg/graceful"
	"github.com/nkorotkov/refbot/pkg/logger"
	"github.com/nkorotkov/refbot/pkg/metrics"
	redisclient "github.com/nkorotkov/refbot/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			slog.Error("failed to init sentry", slog.Any("error", err))
			os.Exit(1)
		}
	}

	log := logger.New(logger.Options{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		File:          cfg.Log.File,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		MaxBackups:    cfg.Log.MaxBackups,
		MaxAgeDays:    cfg.Log.MaxAgeDays,
		SentryEnabled: cfg.Sentry.Enabled,
	})
	slog.SetDefault(log)
	config.Watch(v, log)

	log.Info("starting referral bot",
		slog.String("env", cfg.AppEnv),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("bot_mode", cfg.Bot.Mode),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize record store", slog.Any("error", err))
		os.Exit(1)
	}
	shutdown.Register("store", func(context.Context) error { return store.Close() })
	checker.AddCheck("store", health.NewStoreChecker(store))

	var guard dedupe.Guard
	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		rdb, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			log.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
		checker.AddCheck("redis", health.NewRedisChecker(rdb))

		guard = dedupe.NewRedisGuard(rdb, cfg.Dedupe.TTL)
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.PerWindow, cfg.RateLimit.Window)
	} else {
		guard = dedupe.NewMemoryGuard(cfg.Dedupe.TTL)
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.PerWindow, cfg.RateLimit.Window)
	}
	if !cfg.Dedupe.Enabled {
		guard = nil
	}
	if !cfg.RateLimit.Enabled {
		limiter = nil
	}

	repo := repository.NewUserRepository(store, log)
	engine := referral.NewEngine(store, referral.Config{
		RewardAmount: cfg.Reward.Amount,
		MaxAttempts:  cfg.Reward.MaxTxAttempts,
	}, log)

	b, err := bot.New(*cfg, bot.Deps{
		Repo:    repo,
		Engine:  engine,
		Guard:   guard,
		Limiter: limiter,
	}, log)
	if err != nil {
		log.Error("failed to initialize bot", slog.Any("error", err))
		os.Exit(1)
	}
	shutdown.Register("bot", func(context.Context) error { b.Stop(); return nil })
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))

	collector := metrics.NewStatsCollector(store, 30*time.Second)
	go collector.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checker.Handler())

	srv := graceful.NewServer(log, &http.Server{
		Addr:    cfg.Server.Port,
		Handler: logger.Middleware(mux),
	}, cfg.Server.ShutdownTimeout)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Error("http server stopped with error", slog.Any("error", err))
		}
	}()

	go b.Start()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}

	if cfg.Sentry.Enabled {
		sentry.Flush(2 * time.Second)
	}

	log.Info("referral bot stopped")
}

func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return storage.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.Storage.DSN())
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		return nil, err
	}

	return storage.NewPostgresStore(db, log), nil
}
