package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/nkorotkov/refbot/internal/repository"
	"github.com/nkorotkov/refbot/internal/storage"
)

// NewBalanceHandler returns the /balance command handler.
func NewBalanceHandler(repo repository.UserRepository, log *slog.Logger) Handler {
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

		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.Send("You are not registered yet. Send /start first.")
			}

			log.Error("balance handler failed to fetch user", slog.String("user_id", userID), slog.Any("error", err))
			return c.Send("Unable to load your balance right now. Please try again later.")
		}

		return c.Send(fmt.Sprintf("Your balance: %d coins\nFriends invited: %d", user.Coins, user.ReferralCount))
	}
}
