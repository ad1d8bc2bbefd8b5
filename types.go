package guest

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-router"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// UserStore is the host-provided persistence for users. NewUserStore returns
// a bun-backed implementation for hosts that do not bring their own.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Save(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error
	// VerifyPassword must use a constant time comparison.
	VerifyPassword(user *User, plaintext string) bool
}

// SessionAuthenticator abstracts the host's session mechanics for one
// request. Identities are opaque strings, typically the user id.
type SessionAuthenticator interface {
	// RegenerateSession swaps the session id, keeping its contents.
	RegenerateSession() error
	SetIdentity(identity string) error
	HasIdentity() bool
	CurrentIdentity() string
	ClearIdentity() error
}

// SessionProvider resolves the SessionAuthenticator bound to a request.
type SessionProvider interface {
	ForRequest(c router.Context) SessionAuthenticator
}

// Mailer sends plain transactional mail. See NewSMTPMailer and NewLogMailer.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Clock is injectable for deterministic tests.
type Clock func() time.Time

// RandomSource provides the randomness used for confirmation tokens.
type RandomSource interface {
	// Bytes returns n cryptographically secure random bytes.
	Bytes(n int) ([]byte, error)
	// IntBetween returns a uniform random int in [min, max].
	IntBetween(min, max int) (int, error)
}

// UsernameValidator is an optional capability resolved at construction when
// the host carries a username subsystem.
type UsernameValidator interface {
	ValidateUsername(ctx context.Context, username string) error
}

// ExternalAuthChecker reports users authenticated by a third party
// (SSO, LDAP, ...) whose passwords are not managed here.
type ExternalAuthChecker interface {
	IsExternal(user *User) bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GUEST "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GUEST "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GUEST "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GUEST "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
