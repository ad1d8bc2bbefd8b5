package guest

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// RegisterInput carries a registration request. Role is only honored when it
// passes the configured allow rules; it can never be an admin role.
type RegisterInput struct {
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Role     string         `json:"role"`
	Site     string         `json:"site"`
	Settings map[string]any `json:"settings"`
}

// AccountService owns guest registration, confirmation, and password reset.
type AccountService struct {
	users     UserStore
	tokens    TokenStore
	cfg       Config
	mailer    Mailer
	events    EventSink
	templates MessageTemplates
	usernames UsernameValidator
	logger    Logger
	now       Clock
}

// NewAccountService returns a new AccountService.
func NewAccountService(users UserStore, tokens TokenStore, cfg Config) *AccountService {
	return &AccountService{
		users:     users,
		tokens:    tokens,
		cfg:       cfg,
		mailer:    nil,
		events:    noopEventSink{},
		templates: DefaultMessageTemplates(),
		logger:    defLogger{},
		now:       time.Now,
	}
}

func (s *AccountService) WithLogger(l Logger) *AccountService {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithMailer configures the outgoing mail transport. Without one, mails are
// skipped with a warning.
func (s *AccountService) WithMailer(m Mailer) *AccountService {
	s.mailer = m
	return s
}

// WithEventSink configures the sink for domain events.
func (s *AccountService) WithEventSink(sink EventSink) *AccountService {
	s.events = normalizeEventSink(sink)
	return s
}

// WithTemplates overrides the mail templates.
func (s *AccountService) WithTemplates(t MessageTemplates) *AccountService {
	s.templates = t
	return s
}

// WithUsernameValidator wires the optional username capability, resolved
// once at startup rather than checked per request.
func (s *AccountService) WithUsernameValidator(v UsernameValidator) *AccountService {
	s.usernames = v
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *AccountService) WithClock(clock Clock) *AccountService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates a new guest account following the configured
// registration mode. sess may be nil for transports without sessions.
func (s *AccountService) Register(ctx context.Context, sess SessionAuthenticator, in RegisterInput) (*User, error) {
	if sess != nil && sess.HasIdentity() {
		return nil, ErrAlreadyAuthenticated
	}

	if s.cfg.RegistrationMode == RegistrationClosed {
		return nil, ErrRegistrationClosed
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, s.classifyExisting(ctx, email)
	}

	if s.usernames != nil && in.Name != "" {
		if err := s.usernames.ValidateUsername(ctx, in.Name); err != nil {
			return nil, err
		}
	}

	user, err := s.createUser(ctx, email, in)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Create(ctx, user, "", false)
	if err != nil {
		return nil, err
	}

	if s.cfg.EmailIsValid {
		// Addresses are assumed valid: confirm immediately, skip the mail.
		if err := s.tokens.Consume(ctx, token); err != nil {
			return nil, err
		}
	} else {
		s.sendConfirmation(ctx, user, token, in.Site)
	}

	s.notifyAdmins(ctx, user)

	emitEvent(ctx, s.events, s.logger, EventUserRegister, map[string]any{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
	})

	return user, nil
}

// classifyExisting decides the answer for a registration hitting an email
// that already owns an account. Run again after a unique violation at
// commit: the pre-check alone is not race safe.
func (s *AccountService) classifyExisting(ctx context.Context, email string) error {
	token, err := s.tokens.FindLatestByEmail(ctx, email)
	if err != nil {
		return err
	}

	if token == nil || token.Confirmed {
		return ErrAlreadyRegistered
	}

	if s.cfg.EmailIsValid {
		// The policy changed since the pending registration: heal the
		// token, still answer as registered.
		if err := s.tokens.Consume(ctx, token); err != nil {
			return err
		}
		return ErrAlreadyRegistered
	}

	return ErrPendingConfirmation
}

func (s *AccountService) createUser(ctx context.Context, email string, in RegisterInput) (*User, error) {
	hash := ""
	if in.Password != "" {
		var err error
		if hash, err = HashPassword(in.Password); err != nil {
			return nil, err
		}
	} else {
		hash = RandomPasswordHash()
	}

	user := &User{
		Email:        email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         s.resolveRole(in.Role),
		IsActive:     s.cfg.RegistrationMode == RegistrationOpen,
		Settings:     in.Settings,
	}
	if id, err := hashid.NewUUID(email); err == nil {
		user.ID = id
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if IsUniqueViolation(err) {
			// A concurrent registration won the commit; answer the same
			// way the pre-check would have.
			return nil, s.classifyExisting(ctx, email)
		}
		return nil, wrapStorageError(err, "failed to create user")
	}
	return created, nil
}

// resolveRole honors a requested role only when the allow-list permits it;
// everything else falls back to the configured default, which itself can
// never be an admin role.
func (s *AccountService) resolveRole(requested string) UserRole {
	if requested != "" && requested != RoleGuest {
		s.logger.Warn("requested role %q is not allowed for self registration", requested)
	}
	return s.cfg.registerRole(s.logger)
}

// ConfirmRegistration consumes a confirmation token. When the token was
// created for a different address (email change), the user's email is
// updated to the token's.
func (s *AccountService) ConfirmRegistration(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, ErrInvalidToken
	}

	token, err := s.tokens.FindByToken(ctx, code)
	if err != nil {
		return nil, err
	}
	if token == nil || token.Purpose == TokenPurposeReset {
		return nil, ErrInvalidToken
	}

	user := token.User
	if user == nil {
		return nil, errors.New("token has no user", errors.CategoryInternal)
	}

	if err := s.tokens.Consume(ctx, token); err != nil {
		return nil, err
	}

	changed := false
	if token.Email != "" && !strings.EqualFold(token.Email, user.Email) {
		user.Email = strings.ToLower(token.Email)
		changed = true
	}

	if s.cfg.RegistrationMode == RegistrationOpen && !user.IsActive {
		user.IsActive = true
		changed = true
	}

	if changed {
		if err := s.users.Save(ctx, user); err != nil {
			if IsUniqueViolation(err) {
				return nil, ErrEmailTaken
			}
			return nil, err
		}
	}

	emitEvent(ctx, s.events, s.logger, EventUserConfirm, map[string]any{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	return user, nil
}

// RequestPasswordReset creates a reset token and mails its link. Unknown
// emails report success to avoid leaking account existence.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email, site string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}

	token, err := s.tokens.CreateReset(ctx, user)
	if err != nil {
		return err
	}

	tokenURL := s.tokenURL("reset-password", site, token.Token)
	subject, body := s.templates.ForgotPassword.Render(s.mailData(user, token, tokenURL))
	s.sendMail(ctx, []string{user.Email}, subject, body)

	emitEvent(ctx, s.events, s.logger, EventPasswordReset, map[string]any{
		"user_id": user.ID.String(),
	})

	return nil
}

// ResetPassword sets a new password for the account owning a valid, fresh
// reset token, and consumes the token.
func (s *AccountService) ResetPassword(ctx context.Context, code, newPassword string) error {
	if newPassword == "" {
		return ErrNoEmptyString
	}

	token, err := s.tokens.FindByToken(ctx, code)
	if err != nil {
		return err
	}
	if token == nil || token.Confirmed || token.Purpose != TokenPurposeReset {
		return ErrInvalidToken
	}
	if token.CreatedAt != nil && s.now().Sub(*token.CreatedAt) > s.cfg.TokenMaxAge {
		return ErrInvalidToken
	}

	user := token.User
	if user == nil {
		return errors.New("token has no user", errors.CategoryInternal)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}

	return s.tokens.Consume(ctx, token)
}

func (s *AccountService) sendConfirmation(ctx context.Context, user *User, token *GuestToken, site string) {
	tokenURL := s.tokenURL("confirm-email", site, token.Token)
	if tokenURL == "" {
		return
	}

	subject, body := s.templates.ConfirmEmail.Render(s.mailData(user, token, tokenURL))
	s.sendMail(ctx, []string{user.Email}, subject, body)
}

// notifyAdmins reports the registration to the configured addresses.
// Best effort: failures never fail the registration.
func (s *AccountService) notifyAdmins(ctx context.Context, user *User) {
	if len(s.cfg.NotifyEmails) == 0 {
		return
	}

	subject, body := s.templates.NotifyRegistration.Render(s.mailData(user, nil, ""))
	s.sendMail(ctx, s.cfg.NotifyEmails, subject, body)
}

// sendMail dispatches synchronously and recovers mail errors locally: the
// account state is sound without the email, so the operation still
// succeeds and an administrator can resend.
func (s *AccountService) sendMail(ctx context.Context, to []string, subject, body string) {
	if s.mailer == nil {
		s.logger.Warn("no mailer configured, skipping mail %q to %v", subject, to)
		return
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.logger.Error("failed to send mail %q: %v", subject, err)
	}
}

// tokenURL builds the site scoped confirmation link, or "" when no site can
// be resolved.
func (s *AccountService) tokenURL(action, site, code string) string {
	if site == "" {
		site = s.cfg.DefaultSiteSlug
	}
	if site == "" {
		if !s.cfg.EmailIsValid {
			s.logger.Warn("it is not possible to build a token link without a site, set the email-is-valid option to skip validation")
		}
		return ""
	}

	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/s/%s/guest/%s?token=%s", base, url.PathEscape(site), action, url.QueryEscape(code))
}

func (s *AccountService) mailData(user *User, token *GuestToken, tokenURL string) map[string]string {
	data := map[string]string{
		"main_title": s.cfg.Issuer,
		"site_title": s.cfg.DefaultSiteSlug,
		"user_name":  user.Name,
		"user_email": user.Email,
		"token":      "",
		"token_url":  tokenURL,
	}
	if token != nil {
		data["token"] = token.Token
	}
	return data
}

func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}
