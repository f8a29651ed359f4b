package handlers

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// PhotoFetcher resolves a user's profile photo URL. Implementations are
// best effort: an empty string means no photo could be fetched.
type PhotoFetcher interface {
	ProfilePhotoURL(ctx context.Context, user *telebot.User) string
}

// TelegramPhotoFetcher fetches the most recent profile photo through the
// Bot API and resolves it to a direct file URL.
type TelegramPhotoFetcher struct {
	bot *telebot.Bot
	log *slog.Logger
}

// NewTelegramPhotoFetcher creates a fetcher bound to the bot instance.
func NewTelegramPhotoFetcher(bot *telebot.Bot, log *slog.Logger) *TelegramPhotoFetcher {
	if log == nil {
		log = slog.Default()
	}

	return &TelegramPhotoFetcher{bot: bot, log: log}
}

// ProfilePhotoURL implements PhotoFetcher. Failures are logged at debug
// level only; a missing photo must never block onboarding.
func (f *TelegramPhotoFetcher) ProfilePhotoURL(ctx context.Context, user *telebot.User) string {
	if f == nil || f.bot == nil || user == nil {
		return ""
	}

	photos, err := f.bot.ProfilePhotosOf(user)
	if err != nil || len(photos) == 0 {
		if err != nil {
			f.log.Debug("failed to fetch profile photos", slog.Int64("user_id", user.ID), slog.Any("error", err))
		}
		return ""
	}

	file, err := f.bot.FileByID(photos[0].FileID)
	if err != nil || file.FilePath == "" {
		if err != nil {
			f.log.Debug("failed to resolve photo file", slog.Int64("user_id", user.ID), slog.Any("error", err))
		}
		return ""
	}

	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", f.bot.Token, file.FilePath)
}
