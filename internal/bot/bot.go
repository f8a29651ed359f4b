// Package bot wires the Telegram transport to the referral service.
package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/nkorotkov/refbot/internal/bot/handlers"
	"github.com/nkorotkov/refbot/internal/bot/keyboard"
	"github.com/nkorotkov/refbot/internal/dedupe"
	apperrors "github.com/nkorotkov/refbot/internal/errors"
	"github.com/nkorotkov/refbot/internal/ratelimit"
	"github.com/nkorotkov/refbot/internal/referral"
	"github.com/nkorotkov/refbot/internal/repository"
	"github.com/nkorotkov/refbot/pkg/config"
)

const (
	CommandStart   = "/start"
	CommandInvite  = "/invite"
	CommandBalance = "/balance"
)

// Deps bundles the application services the bot depends on.
type Deps struct {
	Repo    repository.UserRepository
	Engine  *referral.Engine
	Guard   dedupe.Guard
	Limiter ratelimit.Limiter
}

// Bot wraps telebot.Bot with the application wiring.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	router     *Router
	errHandler *apperrors.Handler
}

// New builds a telegram bot instance configured according to the
// application settings.
func New(cfg config.Config, deps Deps, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Bot.Token,
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen: cfg.Bot.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{
				PublicURL: cfg.Bot.WebhookURL,
			},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot:    tb,
		log:        log,
		router:     NewRouter(log),
		errHandler: apperrors.NewHandler(log, cfg.Sentry.Enabled),
	}

	b.setupRouter(cfg, deps)
	b.telebot.Handle(telebot.OnText, b.router.Route)

	return b, nil
}

func (b *Bot) setupRouter(cfg config.Config, deps Deps) {
	b.router.Use(RecoveryMiddleware(b.log, b.errHandler))
	b.router.Use(DedupeMiddleware(deps.Guard, b.log))
	b.router.Use(RateLimitMiddleware(deps.Limiter, b.log))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(MetricsMiddleware)

	kb := keyboard.NewBuilder(cfg.Bot.FrontendURL)
	photos := handlers.NewTelegramPhotoFetcher(b.telebot, b.log)

	botUsername := ""
	if b.telebot.Me != nil {
		botUsername = b.telebot.Me.Username
	}

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(handlers.StartDeps{
		Repo:     deps.Repo,
		Engine:   deps.Engine,
		Photos:   photos,
		Keyboard: kb,
		Log:      b.log,
	}))
	b.router.RegisterCommand(CommandInvite, handlers.NewInviteHandler(deps.Repo, kb, botUsername, b.log))
	b.router.RegisterCommand(CommandBalance, handlers.NewBalanceHandler(deps.Repo, b.log))

	b.router.SetDefault(func(c telebot.Context) error {
		return c.Send("Commands: /start, /invite, /balance")
	})
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations
// such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}
