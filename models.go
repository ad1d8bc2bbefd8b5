package guest

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role in the host application
type UserRole = string

const (
	// RoleGuest is the restricted role for self registered accounts
	RoleGuest UserRole = "guest"
	// RoleGlobalAdmin administers the whole installation
	RoleGlobalAdmin UserRole = "global_admin"
	// RoleSiteAdmin administers one site
	RoleSiteAdmin UserRole = "site_admin"
	// RoleEditor can edit all resources
	RoleEditor UserRole = "editor"
	// RoleReviewer can review submitted resources
	RoleReviewer UserRole = "reviewer"
	// RoleAuthor can create own resources
	RoleAuthor UserRole = "author"
	// RoleResearcher has read access to private resources
	RoleResearcher UserRole = "researcher"
)

// adminRoles are the elevated roles that land in the admin area after login
// and that can never be assigned through self registration.
var adminRoles = map[UserRole]struct{}{
	RoleGlobalAdmin: {},
	RoleSiteAdmin:   {},
	RoleEditor:      {},
	RoleReviewer:    {},
	RoleAuthor:      {},
	RoleResearcher:  {},
}

// IsAdminRole reports whether role belongs to the elevated role set.
func IsAdminRole(role UserRole) bool {
	_, ok := adminRoles[role]
	return ok
}

// User is the subset of the host's user model this package reads and mutates.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role          UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name          string         `bun:"name" json:"name,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"-"`
	IsActive      bool           `bun:"is_active,notnull" json:"is_active"`
	AgreedTerms   bool           `bun:"agreed_terms,notnull" json:"agreed_terms"`
	Settings      map[string]any `bun:"settings" json:"settings,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SetSetting will set one user level setting
func (u *User) SetSetting(key string, val any) *User {
	if u.Settings == nil {
		u.Settings = make(map[string]any)
	}
	u.Settings[key] = val
	return u
}

// TokenPurpose separates confirmation tokens, which drive the account state
// machine, from password reset tokens, which never do.
type TokenPurpose string

const (
	// TokenPurposeConfirm proves control of an email or phone identifier.
	TokenPurposeConfirm TokenPurpose = "confirm"
	// TokenPurposeReset authorizes a one time password reset.
	TokenPurposeReset TokenPurpose = "reset"
)

// GuestToken proves control of an email or phone identifier, or authorizes a
// password reset. Many tokens per user are allowed; the most recently created
// confirmation token carries the current confirmation state for its email.
type GuestToken struct {
	bun.BaseModel `bun:"table:guest_tokens,alias:gtk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User        `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Email         string       `bun:"email,notnull" json:"email,omitempty"`
	Token         string       `bun:"token,notnull" json:"token,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull,nullzero,default:'confirm'" json:"purpose,omitempty"`
	Confirmed     bool         `bun:"confirmed,notnull" json:"confirmed"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsConfirmed reports the confirmation state.
func (t *GuestToken) IsConfirmed() bool {
	return t != nil && t.Confirmed
}

// RegistrationMode controls how new guest accounts are admitted.
type RegistrationMode string

const (
	// RegistrationOpen creates accounts active immediately; login is never
	// blocked on confirmation state.
	RegistrationOpen RegistrationMode = "open"
	// RegistrationModerate creates accounts inactive; activation is a
	// separate administrative or token driven step.
	RegistrationModerate RegistrationMode = "moderate"
	// RegistrationClosed refuses all new accounts.
	RegistrationClosed RegistrationMode = "closed"
)

// IsValid checks the mode against the known set.
func (m RegistrationMode) IsValid() bool {
	switch m {
	case RegistrationOpen, RegistrationModerate, RegistrationClosed:
		return true
	default:
		return false
	}
}

// AccountState is the derived lifecycle position of a guest account.
type AccountState string

const (
	// StateRegistered means a confirmation token exists and is unconfirmed.
	StateRegistered AccountState = "registered"
	// StateConfirmed means the latest token is confirmed but the account is
	// still waiting for activation.
	StateConfirmed AccountState = "confirmed"
	// StateActive is the terminal state: normal login succeeds.
	StateActive AccountState = "active"
)

// StateOf derives the account state from a user and its latest token. A
// missing token counts as confirmed: accounts created directly by an
// administrator never went through the confirmation flow.
func StateOf(user *User, latest *GuestToken) AccountState {
	if user != nil && user.IsActive {
		return StateActive
	}
	if latest == nil || latest.Confirmed {
		return StateConfirmed
	}
	return StateRegistered
}
