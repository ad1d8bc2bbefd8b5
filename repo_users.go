package guest

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users exposes the user repository with the lookups this package needs.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository returns the bun backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	user := new(User)
	err := tx.NewSelect().
		Model(user).
		Where("usr.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// bunUserStore adapts the Users repository to the UserStore interface the
// services consume, with bcrypt password verification.
type bunUserStore struct {
	users Users
	db    *bun.DB
}

var _ UserStore = (*bunUserStore)(nil)

// NewUserStore returns the bundled bun backed UserStore.
func NewUserStore(db *bun.DB) UserStore {
	return &bunUserStore{
		users: NewUsersRepository(db),
		db:    db,
	}
}

func (s *bunUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, wrapStorageError(err, "failed to query user by email")
	}
	return user, nil
}

func (s *bunUserStore) Create(ctx context.Context, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, err := s.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *bunUserStore) Save(ctx context.Context, user *User) error {
	if _, err := s.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return wrapStorageError(err, "failed to save user")
	}
	return nil
}

func (s *bunUserStore) Delete(ctx context.Context, user *User) error {
	// Tokens cascade through the FK; delete them explicitly for drivers
	// without referential actions enabled.
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*GuestToken)(nil)).
			Where("user_id = ?", user.ID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model(user).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return wrapStorageError(err, "failed to delete user")
	}
	return nil
}

func (s *bunUserStore) VerifyPassword(user *User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return ComparePasswordAndHash(plaintext, user.PasswordHash) == nil
}

func isNoRows(err error) bool {
	return repository.IsRecordNotFound(err) ||
		errors.Is(err, sql.ErrNoRows) ||
		strings.Contains(err.Error(), "no rows in result set")
}

// IsUniqueViolation reports whether err is a unique constraint violation
// surfaced at commit time. The email pre-check alone is not race safe, so
// registration treats this as the AlreadyRegistered path.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value violates unique constraint") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}
