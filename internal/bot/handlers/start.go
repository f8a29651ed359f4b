package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/nkorotkov/refbot/internal/bot/keyboard"
	apperrors "github.com/nkorotkov/refbot/internal/errors"
	"github.com/nkorotkov/refbot/internal/referral"
	"github.com/nkorotkov/refbot/internal/repository"
	"github.com/nkorotkov/refbot/pkg/metrics"
)

// referralPrefix is the optional prefix carried by invite-link payloads:
// https://t.me/<bot>?start=ref_<referrer id>.
const referralPrefix = "ref_"

const welcomeMessage = "Welcome! Tap the button below to open the app and start earning coins."

// StartDeps bundles the collaborators of the /start handler.
type StartDeps struct {
	Repo     repository.UserRepository
	Engine   *referral.Engine
	Photos   PhotoFetcher
	Keyboard *keyboard.Builder
	Log      *slog.Logger
}

// NewStartHandler returns the /start handler. It ensures the user record
// exists, runs the referral reward transaction, and sends the welcome
// message. The welcome message goes out regardless of the reward outcome:
// a missed reward is acceptable, a stalled onboarding is not.
func NewStartHandler(deps StartDeps) Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx := context.Background()
		subjectID := strconv.FormatInt(sender.ID, 10)

		payload := ""
		if msg := c.Message(); msg != nil {
			payload = msg.Payload
		}
		token := ParseReferralToken(payload)

		photoURL := ""
		if deps.Photos != nil {
			photoURL = deps.Photos.ProfilePhotoURL(ctx, sender)
		}

		if _, err := deps.Repo.EnsureUser(ctx, subjectID, displayName(sender), photoURL, token); err != nil {
			log.Error("ensure user failed", slog.String("user_id", subjectID), slog.Any("error", err))
		}

		outcome, err := processReferral(ctx, deps.Engine, subjectID, token)
		if err != nil {
			metrics.RecordReferralOutcome("error")
			log.Error("referral processing failed",
				slog.String("user_id", subjectID),
				slog.Any("error", err),
			)
		} else {
			metrics.RecordReferralOutcome(string(outcome))
			log.Info("referral processed",
				slog.String("user_id", subjectID),
				slog.String("outcome", string(outcome)),
			)
		}

		if markup := deps.Keyboard.Welcome(); markup != nil {
			return c.Send(welcomeMessage, markup)
		}

		return c.Send(welcomeMessage)
	}
}

// processReferral runs the reward transaction, retrying transient store
// failures with bounded backoff on top of the engine's own conflict
// retries. The transaction is all-or-nothing, so a rerun can never
// double-apply the reward.
func processReferral(ctx context.Context, engine *referral.Engine, subjectID, token string) (referral.Outcome, error) {
	var outcome referral.Outcome

	err := apperrors.WithRetry(ctx, func() error {
		var procErr error
		outcome, procErr = engine.Process(ctx, subjectID, token)
		return procErr
	})

	return outcome, err
}

// ParseReferralToken extracts the referral token from a /start payload.
// The optional "ref_" prefix is stripped; an empty payload yields no token.
func ParseReferralToken(payload string) string {
	token := strings.TrimSpace(payload)
	token = strings.TrimPrefix(token, referralPrefix)

	return token
}

func displayName(user *telebot.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name == "" {
		name = user.Username
	}

	return name
}
