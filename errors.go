package guest

import (
	"github.com/goliatone/go-errors"
)

// Policy errors carry fixed, non leaking messages. The guest specific gates
// (ErrUnconfirmedRegistration, ErrUnderModeration) are intentionally more
// specific than the plain credential failure: the caller already proved
// knowledge of the registration by submitting its email.
var (
	// ErrAlreadyAuthenticated rejects registration from a logged in session.
	ErrAlreadyAuthenticated = errors.New("already authenticated", errors.CategoryConflict).
				WithTextCode("ALREADY_AUTHENTICATED").
				WithCode(errors.CodeConflict)

	// ErrRegistrationClosed is returned when the registration mode is closed.
	ErrRegistrationClosed = errors.New("registration is closed", errors.CategoryAuthz).
				WithTextCode("REGISTRATION_CLOSED").
				WithCode(errors.CodeForbidden)

	// ErrInvalidEmail reports a missing or malformed email address.
	ErrInvalidEmail = errors.New("invalid email", errors.CategoryValidation).
			WithTextCode("INVALID_EMAIL").
			WithCode(errors.CodeBadRequest)

	// ErrAlreadyRegistered is returned for emails that already own a
	// confirmed account. It does not reveal whether the account is active.
	ErrAlreadyRegistered = errors.New("already registered", errors.CategoryConflict).
				WithTextCode("ALREADY_REGISTERED").
				WithCode(errors.CodeConflict)

	// ErrPendingConfirmation is returned for emails with an unconfirmed
	// registration: the user should check their mailbox.
	ErrPendingConfirmation = errors.New("check your email to confirm your registration", errors.CategoryConflict).
				WithTextCode("PENDING_CONFIRMATION").
				WithCode(errors.CodeConflict)

	// ErrUnconfirmedRegistration blocks guest logins before confirmation.
	ErrUnconfirmedRegistration = errors.New("your account has not been confirmed: check your email", errors.CategoryAuth).
					WithTextCode("UNCONFIRMED_REGISTRATION").
					WithCode(errors.CodeUnauthorized)

	// ErrUnderModeration blocks confirmed but not yet activated accounts
	// when the registration mode is not open.
	ErrUnderModeration = errors.New("your account is under moderation for opening", errors.CategoryAuth).
				WithTextCode("UNDER_MODERATION").
				WithCode(errors.CodeUnauthorized)

	// ErrIdentityNotFound folds "no such user" and "inactive user" into one
	// answer so probing cannot tell them apart.
	ErrIdentityNotFound = errors.New("identity not found", errors.CategoryAuth).
				WithTextCode("IDENTITY_NOT_FOUND").
				WithCode(errors.CodeUnauthorized)

	// ErrInvalidCredentials reports a password mismatch.
	ErrInvalidCredentials = errors.New("email or password is invalid", errors.CategoryAuth).
				WithTextCode("INVALID_CREDENTIALS").
				WithCode(errors.CodeUnauthorized)

	// ErrEmailTaken rejects an email change to an address owned by another
	// account.
	ErrEmailTaken = errors.New("email is already taken", errors.CategoryConflict).
			WithTextCode("EMAIL_TAKEN").
			WithCode(errors.CodeConflict)

	// ErrInvalidToken is returned for unknown confirmation or reset codes.
	ErrInvalidToken = errors.New("invalid or expired token", errors.CategoryAuth).
			WithTextCode("INVALID_TOKEN").
			WithCode(errors.CodeUnauthorized)

	// ErrExternalAccount rejects password operations for accounts managed
	// by an external identity provider.
	ErrExternalAccount = errors.New("password is managed by an external identity provider", errors.CategoryAuthz).
				WithTextCode("EXTERNAL_ACCOUNT").
				WithCode(errors.CodeForbidden)

	// ErrInvalidPhone reports a phone number that could not be parsed.
	ErrInvalidPhone = errors.New("invalid phone number", errors.CategoryValidation).
			WithTextCode("INVALID_PHONE").
			WithCode(errors.CodeBadRequest)

	// ErrMismatchedHashAndPassword mirrors bcrypt's mismatch sentinel.
	ErrMismatchedHashAndPassword = errors.New("hashed password mismatch", errors.CategoryAuth).
					WithTextCode("PASSWORD_MISMATCH").
					WithCode(errors.CodeUnauthorized)

	// ErrNoEmptyString rejects empty values where content is required.
	ErrNoEmptyString = errors.New("value should not be an empty string", errors.CategoryValidation).
				WithTextCode("EMPTY_STRING").
				WithCode(errors.CodeBadRequest)

	// ErrTokenExpired is returned for expired session tokens.
	ErrTokenExpired = errors.New("session token is expired", errors.CategoryAuth).
			WithTextCode("TOKEN_EXPIRED").
			WithCode(errors.CodeUnauthorized)

	// ErrTokenMalformed is returned for session tokens that fail to parse.
	ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
			WithTextCode("TOKEN_MALFORMED").
			WithCode(errors.CodeUnauthorized)
)

// IsPolicyError reports whether err is one of the fixed policy answers that
// are safe to show verbatim to the caller.
func IsPolicyError(err error) bool {
	for _, target := range []*errors.Error{
		ErrAlreadyAuthenticated,
		ErrRegistrationClosed,
		ErrAlreadyRegistered,
		ErrPendingConfirmation,
		ErrUnconfirmedRegistration,
		ErrUnderModeration,
		ErrEmailTaken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapStorageError normalizes storage failures to a fatal internal error.
func wrapStorageError(err error, msg string) error {
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithCode(errors.CodeInternal)
}
