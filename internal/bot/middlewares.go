package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/nkorotkov/refbot/internal/bot/handlers"
	"github.com/nkorotkov/refbot/internal/dedupe"
	apperrors "github.com/nkorotkov/refbot/internal/errors"
	"github.com/nkorotkov/refbot/internal/ratelimit"
	"github.com/nkorotkov/refbot/pkg/metrics"
)

// RecoveryMiddleware catches panics, reports them through the centralized
// handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)

					if errHandler != nil {
						_, _ = errHandler.Handle(context.Background(), apperrors.NewTelegramAPIError(nil))
					}

					if c != nil {
						_ = c.Send("Something went wrong. Please try again later.")
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()

			log.Info("handling update",
				slog.Int64("user_id", senderID(c)),
				slog.String("action", c.Text()),
			)

			err := next(c)

			log.Info("handled update",
				slog.Int64("user_id", senderID(c)),
				slog.String("action", c.Text()),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// MetricsMiddleware records command counters and durations.
func MetricsMiddleware(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordCommand(commandWord(c.Text()), status, time.Since(start))

		return err
	}
}

// DedupeMiddleware drops updates whose id has been handled before.
// Best effort only: a guard failure lets the update through, the reward
// transaction stays exactly-once either way.
func DedupeMiddleware(guard dedupe.Guard, log *slog.Logger) handlers.Middleware {
	if guard == nil {
		return passthrough
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			update := c.Update()
			if update.ID == 0 {
				return next(c)
			}

			key := strconv.Itoa(update.ID)
			first, err := guard.FirstSeen(context.Background(), key)
			if err != nil {
				log.Warn("dedupe guard unavailable", slog.Any("error", err))
				return next(c)
			}
			if !first {
				log.Info("duplicate update dropped", slog.String("update_id", key))
				return nil
			}

			return next(c)
		}
	}
}

// RateLimitMiddleware drops updates from users exceeding the per-window
// budget.
func RateLimitMiddleware(limiter ratelimit.Limiter, log *slog.Logger) handlers.Middleware {
	if limiter == nil {
		return passthrough
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			id := senderID(c)
			if id == 0 {
				return next(c)
			}

			allowed, err := limiter.Allow(context.Background(), strconv.FormatInt(id, 10))
			if err != nil {
				log.Warn("rate limiter unavailable", slog.Any("error", err))
				return next(c)
			}
			if !allowed {
				log.Info("update rate limited", slog.Int64("user_id", id))
				return nil
			}

			return next(c)
		}
	}
}

func passthrough(next handlers.Handler) handlers.Handler {
	return next
}

func senderID(c telebot.Context) int64 {
	if c == nil || c.Sender() == nil {
		return 0
	}

	return c.Sender().ID
}
