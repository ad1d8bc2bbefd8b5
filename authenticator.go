package guest

import (
	"context"
	"strings"
	"time"
)

// Authenticator verifies guest credentials and runs the login and logout
// session flows.
type Authenticator struct {
	users  UserStore
	tokens TokenStore
	cfg    Config
	events EventSink
	logger Logger
	now    Clock
}

// NewAuthenticator returns a new Authenticator.
func NewAuthenticator(users UserStore, tokens TokenStore, cfg Config) *Authenticator {
	return &Authenticator{
		users:  users,
		tokens: tokens,
		cfg:    cfg,
		events: noopEventSink{},
		logger: defLogger{},
		now:    time.Now,
	}
}

func (a *Authenticator) WithLogger(l Logger) *Authenticator {
	if l != nil {
		a.logger = l
	}
	return a
}

func (a *Authenticator) WithEventSink(sink EventSink) *Authenticator {
	a.events = normalizeEventSink(sink)
	return a
}

func (a *Authenticator) WithClock(clock Clock) *Authenticator {
	if clock != nil {
		a.now = clock
	}
	return a
}

// verify runs the base credential check: account lookup, the confirmation
// gate for guests, then the password. Inactive accounts are folded into
// the not-found answer so probing cannot tell them apart.
func (a *Authenticator) verify(ctx context.Context, email, password string) (*User, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrIdentityNotFound
	}

	// Under open registration the account is live from the start, so the
	// confirmation gate only applies to the other modes.
	if user.Role == RoleGuest && a.cfg.RegistrationMode != RegistrationOpen {
		token, err := a.tokens.FindLatestByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if token != nil && !token.Confirmed {
			return nil, ErrUnconfirmedRegistration
		}
	}

	if !a.users.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Authenticate verifies credentials and refines the failure message for
// moderated registrations: a pending account answers with its actual state
// rather than a generic failure.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := a.verify(ctx, email, password)
	if err == nil {
		return user, nil
	}

	if a.cfg.RegistrationMode == RegistrationOpen {
		return nil, err
	}

	pending, lookupErr := a.users.FindByEmail(ctx, email)
	if lookupErr != nil || pending == nil {
		return nil, err
	}

	token, lookupErr := a.tokens.FindLatestByEmail(ctx, email)
	if lookupErr != nil {
		return nil, err
	}

	if token == nil || token.Confirmed {
		if !pending.IsActive {
			return nil, ErrUnderModeration
		}
		return nil, err
	}

	return nil, ErrUnconfirmedRegistration
}

// Login authenticates and binds the identity to the session. The session id
// is regenerated before the identity is stored to defeat fixation.
func (a *Authenticator) Login(ctx context.Context, sess SessionAuthenticator, email, password string) (*User, error) {
	user, err := a.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if sess != nil {
		if err := sess.RegenerateSession(); err != nil {
			return nil, wrapStorageError(err, "failed to regenerate session")
		}
		if err := sess.SetIdentity(user.ID.String()); err != nil {
			return nil, wrapStorageError(err, "failed to store identity")
		}
	}

	emitEvent(ctx, a.events, a.logger, EventUserLogin, map[string]any{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
	})

	return user, nil
}

// Logout clears the session identity. Logging out without an identity is
// not an error.
func (a *Authenticator) Logout(ctx context.Context, sess SessionAuthenticator) error {
	if sess == nil || !sess.HasIdentity() {
		return nil
	}

	identity := sess.CurrentIdentity()
	if err := sess.ClearIdentity(); err != nil {
		return wrapStorageError(err, "failed to clear identity")
	}

	emitEvent(ctx, a.events, a.logger, EventUserLogout, map[string]any{
		"user_id": identity,
	})

	return nil
}
