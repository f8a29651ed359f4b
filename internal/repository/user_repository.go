package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nkorotkov/refbot/internal/domain"
	"github.com/nkorotkov/refbot/internal/storage"
)

// ensureUserAttempts bounds conflict retries for the upsert; EnsureUser
// races only on identity fields, so a retry always converges.
const ensureUserAttempts = 3

// UserRepository owns the schema and lifecycle of per-user records.
type UserRepository interface {
	// EnsureUser creates the record for id when missing, or refreshes its
	// identity fields when present. It never touches attribution or
	// monetary fields on an existing record.
	EnsureUser(ctx context.Context, id, displayName, photoURL, referralToken string) (*domain.UserRecord, error)
	// FindByID returns the user record for id, or storage.ErrNotFound.
	FindByID(ctx context.Context, id string) (*domain.UserRecord, error)
}

type userRepository struct {
	store storage.Store
	log   *slog.Logger
}

// NewUserRepository creates a store-backed user repository.
func NewUserRepository(store storage.Store, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}

	return &userRepository{
		store: store,
		log:   log,
	}
}

func (r *userRepository) EnsureUser(ctx context.Context, id, displayName, photoURL, referralToken string) (*domain.UserRecord, error) {
	if id == "" {
		return nil, errors.New("user id is empty")
	}

	var result *domain.UserRecord
	var lastErr error

	for attempt := 1; attempt <= ensureUserAttempts; attempt++ {
		err := r.store.RunTx(ctx, func(tx storage.Tx) error {
			existing, err := tx.GetUser(ctx, id)
			switch {
			case err == nil:
				result = refreshIdentity(existing, displayName, photoURL)
			case errors.Is(err, storage.ErrNotFound):
				result = newUserRecord(id, displayName, photoURL, referralToken)
			default:
				return err
			}

			return tx.PutUser(ctx, result)
		})
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, storage.ErrConflict) {
			r.log.Error("ensure user failed", slog.String("user_id", id), slog.Any("error", err))
			return nil, fmt.Errorf("ensure user: %w", err)
		}

		lastErr = err
	}

	return nil, fmt.Errorf("ensure user attempts exhausted: %w", lastErr)
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.UserRecord, error) {
	user, err := r.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}

		r.log.Error("failed to fetch user", slog.String("user_id", id), slog.Any("error", err))
		return nil, fmt.Errorf("find user: %w", err)
	}

	return user, nil
}

// newUserRecord builds the initial record for a first "start" event.
// A referral token equal to the user's own id is dropped.
func newUserRecord(id, displayName, photoURL, referralToken string) *domain.UserRecord {
	referredBy := ""
	if referralToken != "" && referralToken != id {
		referredBy = referralToken
	}

	return &domain.UserRecord{
		ID:             id,
		DisplayName:    displayName,
		PhotoURL:       photoURL,
		FrontendOpened: true,
		ReferredBy:     referredBy,
	}
}

// refreshIdentity updates only the identity fields of an existing record.
func refreshIdentity(existing *domain.UserRecord, displayName, photoURL string) *domain.UserRecord {
	updated := existing.Clone()
	updated.DisplayName = displayName
	if photoURL != "" {
		updated.PhotoURL = photoURL
	}
	updated.FrontendOpened = true

	return updated
}
