package guest

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore creates, finds, and consumes confirmation tokens.
type TokenStore interface {
	// Create persists a confirmation token for user. identifier defaults to
	// user.Email; short selects a 6 digit numeric code instead of the
	// alphanumeric token. A user without an id is persisted first, in the
	// same transaction.
	Create(ctx context.Context, user *User, identifier string, short bool) (*GuestToken, error)
	// CreateReset persists a password reset token. Reset tokens never count
	// toward the confirmation state of an email.
	CreateReset(ctx context.Context, user *User) (*GuestToken, error)
	// FindLatestByEmail returns the most recent confirmation token for an
	// email, or nil. Reset tokens are excluded: they are not part of the
	// account state machine.
	FindLatestByEmail(ctx context.Context, email string) (*GuestToken, error)
	// FindByToken returns the token with the given code, or nil.
	FindByToken(ctx context.Context, code string) (*GuestToken, error)
	// Consume flips confirmed to true. Consuming an already confirmed
	// token is a no-op, not an error.
	Consume(ctx context.Context, token *GuestToken) error
	// PurgeExpired deletes unconfirmed tokens older than olderThan.
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

type guestTokens struct {
	db     *bun.DB
	random RandomSource
	now    Clock
	logger Logger
}

var _ TokenStore = (*guestTokens)(nil)

// TokenStoreOption customizes the bun backed TokenStore.
type TokenStoreOption func(*guestTokens)

// WithTokenRandomSource injects the randomness used for token generation.
func WithTokenRandomSource(r RandomSource) TokenStoreOption {
	return func(s *guestTokens) {
		if r != nil {
			s.random = r
		}
	}
}

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock Clock) TokenStoreOption {
	return func(s *guestTokens) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenLogger overrides the store logger.
func WithTokenLogger(l Logger) TokenStoreOption {
	return func(s *guestTokens) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTokenStore returns a TokenStore backed by bun.
func NewTokenStore(db *bun.DB, opts ...TokenStoreOption) TokenStore {
	store := &guestTokens{
		db:     db,
		random: cryptoRandom{},
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

func (s *guestTokens) Create(ctx context.Context, user *User, identifier string, short bool) (*GuestToken, error) {
	return s.create(ctx, user, identifier, short, TokenPurposeConfirm)
}

func (s *guestTokens) CreateReset(ctx context.Context, user *User) (*GuestToken, error) {
	return s.create(ctx, user, "", false, TokenPurposeReset)
}

func (s *guestTokens) create(ctx context.Context, user *User, identifier string, short bool, purpose TokenPurpose) (*GuestToken, error) {
	if user == nil {
		return nil, errors.New("token requires a user", errors.CategoryBadInput)
	}

	if identifier == "" {
		identifier = user.Email
	}

	var code string
	var err error
	if short {
		code, err = generateShortCode(s.random, func(candidate string) (bool, error) {
			existing, err := s.FindByToken(ctx, candidate)
			if err != nil {
				return false, err
			}
			return existing != nil, nil
		})
	} else {
		code, err = generateLongToken(s.random)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	token := &GuestToken{
		Email:     identifier,
		Token:     code,
		Purpose:   purpose,
		Confirmed: false,
		CreatedAt: &now,
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
			if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
				return wrapStorageError(err, "failed to persist user for token")
			}
		}

		token.ID = uuid.New()
		token.UserID = user.ID
		if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
			return wrapStorageError(err, "failed to persist guest token")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token.User = user
	return token, nil
}

func (s *guestTokens) FindLatestByEmail(ctx context.Context, email string) (*GuestToken, error) {
	token := new(GuestToken)
	err := s.db.NewSelect().
		Model(token).
		Relation("User").
		Where("gtk.email = ?", email).
		Where("gtk.purpose = ?", TokenPurposeConfirm).
		OrderExpr("gtk.created_at DESC").
		OrderExpr("gtk.id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStorageError(err, "failed to query latest guest token")
	}
	return token, nil
}

func (s *guestTokens) FindByToken(ctx context.Context, code string) (*GuestToken, error) {
	token := new(GuestToken)
	err := s.db.NewSelect().
		Model(token).
		Relation("User").
		Where("gtk.token = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStorageError(err, "failed to query guest token")
	}
	return token, nil
}

func (s *guestTokens) Consume(ctx context.Context, token *GuestToken) error {
	if token == nil {
		return errors.New("cannot consume nil token", errors.CategoryBadInput)
	}

	if token.Confirmed {
		return nil
	}

	_, err := s.db.NewUpdate().
		Model(token).
		Set("confirmed = ?", true).
		WherePK().
		Exec(ctx)
	if err != nil {
		return wrapStorageError(err, "failed to consume guest token")
	}

	token.Confirmed = true
	return nil
}

func (s *guestTokens) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)

	res, err := s.db.NewDelete().
		Model((*GuestToken)(nil)).
		Where("confirmed = ?", false).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, wrapStorageError(err, "failed to purge expired guest tokens")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	s.logger.Debug("purged %d expired guest tokens", affected)
	return affected, nil
}
