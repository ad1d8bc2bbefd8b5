package guest

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
)

// Config carries every setting the package consumes, resolved once at
// construction. Nothing reads ad hoc from a global settings store.
type Config struct {
	// RegistrationMode is one of open, moderate, closed.
	RegistrationMode RegistrationMode `env:"GUEST_REGISTRATION_MODE" envDefault:"moderate"`

	// EmailIsValid assumes submitted addresses are valid: the matching
	// confirmation token is created already confirmed and no confirmation
	// email is sent.
	EmailIsValid bool `env:"GUEST_REGISTER_EMAIL_IS_VALID"`

	// SiteBound requires a site context for registration flows; without it
	// confirmation links cannot be built.
	SiteBound bool `env:"GUEST_REGISTER_SITE"`

	// DefaultRole is the role assigned to self registered accounts. Admin
	// class roles are refused and fall back to guest.
	DefaultRole UserRole `env:"GUEST_REGISTER_ROLE_DEFAULT" envDefault:"guest"`

	// NotifyEmails receive a best effort notification for each registration.
	NotifyEmails []string `env:"GUEST_NOTIFY_REGISTER"`

	// RedirectDefault is home, site, me, top, or a literal URL.
	RedirectDefault string `env:"GUEST_REDIRECT" envDefault:"home"`

	// TermsPage is the slug of the terms of use page, exempt from the
	// agreement gate.
	TermsPage string `env:"GUEST_TERMS_PAGE"`

	// TermsRequestRegex adds extra path alternatives to the agreement gate
	// allow list.
	TermsRequestRegex string `env:"GUEST_TERMS_REQUEST_REGEX"`

	// DefaultSiteSlug is used when the current path carries no site.
	DefaultSiteSlug string `env:"GUEST_DEFAULT_SITE"`

	// BaseURL prefixes confirmation and reset links in outgoing mail.
	BaseURL string `env:"GUEST_BASE_URL"`

	// PhoneRegion is the default region for parsing phone numbers.
	PhoneRegion string `env:"GUEST_PHONE_REGION" envDefault:"US"`

	// TokenMaxAge bounds the PurgeExpired cleanup of stale tokens.
	TokenMaxAge time.Duration `env:"GUEST_TOKEN_MAX_AGE" envDefault:"168h"`

	// SigningKey signs stateless session tokens for the JSON API.
	SigningKey string `env:"GUEST_SIGNING_KEY"`

	// TokenExpiration is the session token lifetime in hours.
	TokenExpiration int `env:"GUEST_TOKEN_EXPIRATION" envDefault:"24"`

	// Issuer and Audience are embedded in session tokens.
	Issuer   string   `env:"GUEST_TOKEN_ISSUER"`
	Audience []string `env:"GUEST_TOKEN_AUDIENCE"`

	SMTP SMTPConfig `envPrefix:"GUEST_SMTP_"`
}

// SMTPConfig configures the bundled gomail Mailer.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

// LoadConfig parses the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "failed to parse guest configuration")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	if !c.RegistrationMode.IsValid() {
		return errors.New("invalid registration mode", errors.CategoryBadInput).
			WithTextCode("INVALID_REGISTRATION_MODE").
			WithMetadata(map[string]any{"mode": string(c.RegistrationMode)})
	}
	return nil
}

// registerRole resolves the role for a new registration: the configured
// default, downgraded to guest when missing or admin class.
func (c Config) registerRole(logger Logger) UserRole {
	role := strings.TrimSpace(string(c.DefaultRole))
	if role == "" {
		return RoleGuest
	}
	if IsAdminRole(role) {
		logger.Warn("the role %q is an admin role and cannot be used for registering, role guest is used instead", role)
		return RoleGuest
	}
	return role
}
