package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/nkorotkov/refbot/internal/bot/keyboard"
	"github.com/nkorotkov/refbot/internal/repository"
	"github.com/nkorotkov/refbot/internal/storage"
)

// NewInviteHandler returns the /invite command handler: it replies with
// the sender's personal invite link and referral count.
func NewInviteHandler(repo repository.UserRepository, kb *keyboard.Builder, botUsername string, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx := context.Background()
		userID := strconv.FormatInt(sender.ID, 10)
		link := fmt.Sprintf("https://t.me/%s?start=%s%s", botUsername, referralPrefix, userID)

		referrals := int64(0)
		user, err := repo.FindByID(ctx, userID)
		switch {
		case err == nil:
			referrals = user.ReferralCount
		case errors.Is(err, storage.ErrNotFound):
			// user never ran /start, the link still works
		default:
			log.Error("invite handler failed to fetch user", slog.String("user_id", userID), slog.Any("error", err))
		}

		message := fmt.Sprintf(
			"Your invite link:\n%s\n\nFriends invited so far: %d",
			link,
			referrals,
		)

		if markup := kb.Invite(link); markup != nil {
			return c.Send(message, markup)
		}

		return c.Send(message)
	}
}
