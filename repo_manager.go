package guest

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes the package repositories to host applications.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Tokens() TokenStore
	UserStore() UserStore
}

type mngr struct {
	db     *bun.DB
	users  Users
	tokens TokenStore
	store  UserStore
}

// NewRepositoryManager wires the bun backed repositories.
func NewRepositoryManager(db *bun.DB, opts ...TokenStoreOption) RepositoryManager {
	return &mngr{
		db:     db,
		users:  NewUsersRepository(db),
		tokens: NewTokenStore(db, opts...),
		store:  NewUserStore(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tokens == nil {
		return errors.New("token store should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Tokens() TokenStore {
	return m.tokens
}

func (m mngr) UserStore() UserStore {
	return m.store
}

// CreateTables creates the users and guest_tokens tables. Meant for tests
// and the examples app; production hosts run their own migrations.
func CreateTables(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return wrapStorageError(err, "failed to create users table")
	}

	if _, err := db.NewCreateTable().
		Model((*GuestToken)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return wrapStorageError(err, "failed to create guest_tokens table")
	}

	return nil
}
