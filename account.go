package guest

import (
	"context"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ProfileUpdate carries the fields a guest may change about themselves.
// Role and activation state are deliberately not part of this type.
type ProfileUpdate struct {
	Name     *string        `json:"name"`
	Settings map[string]any `json:"settings"`
}

// AccountUpdater owns the self-service account operations of an already
// authenticated guest.
type AccountUpdater struct {
	users     UserStore
	tokens    TokenStore
	cfg       Config
	mailer    Mailer
	external  ExternalAuthChecker
	templates MessageTemplates
	logger    Logger
}

// NewAccountUpdater returns a new AccountUpdater.
func NewAccountUpdater(users UserStore, tokens TokenStore, cfg Config) *AccountUpdater {
	return &AccountUpdater{
		users:     users,
		tokens:    tokens,
		cfg:       cfg,
		templates: DefaultMessageTemplates(),
		logger:    defLogger{},
	}
}

func (u *AccountUpdater) WithLogger(l Logger) *AccountUpdater {
	if l != nil {
		u.logger = l
	}
	return u
}

func (u *AccountUpdater) WithMailer(m Mailer) *AccountUpdater {
	u.mailer = m
	return u
}

func (u *AccountUpdater) WithTemplates(t MessageTemplates) *AccountUpdater {
	u.templates = t
	return u
}

// WithExternalAuthChecker wires detection of accounts whose credentials
// live in an external identity provider.
func (u *AccountUpdater) WithExternalAuthChecker(checker ExternalAuthChecker) *AccountUpdater {
	u.external = checker
	return u
}

// UpdateProfile applies a profile change. Settings keys that shadow
// privileged columns are dropped and logged.
func (u *AccountUpdater) UpdateProfile(ctx context.Context, user *User, in ProfileUpdate) error {
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}

	for key, value := range in.Settings {
		switch key {
		case "role", "is_active", "email", "password":
			u.logger.Warn("dropped privileged settings key %q from profile update for %s", key, user.ID)
		default:
			user.SetSetting(key, value)
		}
	}

	return u.users.Save(ctx, user)
}

// RequestEmailChange creates a confirmation token keyed to the new address
// and mails its link there. The account email only changes once the token
// is confirmed.
func (u *AccountUpdater) RequestEmailChange(ctx context.Context, user *User, newEmail, site string) (*GuestToken, error) {
	newEmail = strings.TrimSpace(strings.ToLower(newEmail))
	if err := validateEmail(newEmail); err != nil {
		return nil, err
	}

	if strings.EqualFold(newEmail, user.Email) {
		u.logger.Warn("email change requested to the current address for %s", user.ID)
		return nil, nil
	}

	owner, err := u.users.FindByEmail(ctx, newEmail)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return nil, ErrEmailTaken
	}

	token, err := u.tokens.Create(ctx, user, newEmail, false)
	if err != nil {
		return nil, err
	}

	tokenURL := u.tokenURL(site, token.Token)
	subject, body := u.templates.UpdateEmail.Render(map[string]string{
		"main_title": u.cfg.Issuer,
		"user_name":  user.Name,
		"user_email": newEmail,
		"token":      token.Token,
		"token_url":  tokenURL,
	})
	u.sendMail(ctx, []string{newEmail}, subject, body)

	return token, nil
}

// ChangePassword verifies the current password and stores a new hash.
// Accounts backed by an external identity provider cannot change their
// password here.
func (u *AccountUpdater) ChangePassword(ctx context.Context, user *User, current, next string) error {
	if next == "" {
		return ErrNoEmptyString
	}

	if u.external != nil && u.external.IsExternal(user) {
		return ErrExternalAccount
	}

	if !u.users.VerifyPassword(user, current) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	return u.users.Save(ctx, user)
}

// RequestPhoneConfirmation validates and normalizes the phone number, then
// creates a short numeric code keyed to its E.164 form. Delivery of the
// code is up to the caller's SMS transport.
func (u *AccountUpdater) RequestPhoneConfirmation(ctx context.Context, user *User, phone string) (*GuestToken, error) {
	parsed, err := phonenumbers.Parse(phone, u.cfg.PhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return nil, ErrInvalidPhone
	}

	e164 := phonenumbers.Format(parsed, phonenumbers.E164)
	return u.tokens.Create(ctx, user, e164, true)
}

func (u *AccountUpdater) tokenURL(site, code string) string {
	svc := AccountService{cfg: u.cfg, logger: u.logger}
	return svc.tokenURL("confirm-email", site, code)
}

func (u *AccountUpdater) sendMail(ctx context.Context, to []string, subject, body string) {
	if u.mailer == nil {
		u.logger.Warn("no mailer configured, skipping mail %q to %v", subject, to)
		return
	}
	if err := u.mailer.Send(ctx, to, subject, body); err != nil {
		u.logger.Error("failed to send mail %q: %v", subject, err)
	}
}
