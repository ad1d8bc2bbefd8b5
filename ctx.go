package guest

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// LocalsUserKey is the router.Context locals key holding the current user.
var LocalsUserKey = "guest:user"

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// SetRouterUser stashes the current user in the router context locals.
func SetRouterUser(ctx router.Context, user *User) {
	ctx.Locals(LocalsUserKey, user)
	ctx.SetContext(WithContext(ctx.Context(), user))
}

// GetRouterUser extracts the current user from the router context.
func GetRouterUser(ctx router.Context) (*User, bool) {
	raw := ctx.Locals(LocalsUserKey)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*User)
	return user, ok
}

// IsGuestUser reports whether the current request carries an authenticated
// guest account.
func IsGuestUser(ctx router.Context) bool {
	user, ok := GetRouterUser(ctx)
	return ok && user.Role == RoleGuest
}
