package guest

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// MessageTemplate is a mail template with moustache style {placeholders}.
type MessageTemplate struct {
	Subject string
	Body    string
}

// MessageTemplates collects the templates for every mail this package sends.
// Placeholders: {main_title}, {site_title}, {user_name}, {user_email},
// {token}, {token_url}.
type MessageTemplates struct {
	ConfirmEmail       MessageTemplate
	UpdateEmail        MessageTemplate
	ForgotPassword     MessageTemplate
	NotifyRegistration MessageTemplate
}

// DefaultMessageTemplates returns the stock texts.
func DefaultMessageTemplates() MessageTemplates {
	return MessageTemplates{
		ConfirmEmail: MessageTemplate{
			Subject: "Your registration to {main_title}",
			Body: "Hi {user_name},\n" +
				"You have registered for an account on {main_title}.\n" +
				"Please confirm your email by following this link: {token_url}\n" +
				"If you did not request to join, please disregard this email.",
		},
		UpdateEmail: MessageTemplate{
			Subject: "Confirm your email for {main_title}",
			Body: "Hi {user_name},\n" +
				"You have requested to update the email of your account on {main_title}.\n" +
				"Please confirm your new email by following this link: {token_url}\n" +
				"If you did not request it, please disregard this email.",
		},
		ForgotPassword: MessageTemplate{
			Subject: "Reset your password for {main_title}",
			Body: "Hi {user_name},\n" +
				"To reset your password on {main_title}, follow this link: {token_url}\n" +
				"If you did not request it, please disregard this email.",
		},
		NotifyRegistration: MessageTemplate{
			Subject: "[{main_title}] New registration",
			Body:    "A new user is registering: {user_email}.",
		},
	}
}

// Render fills the template placeholders from data.
func (t MessageTemplate) Render(data map[string]string) (subject, body string) {
	pairs := make([]string, 0, len(data)*2)
	for key, val := range data {
		pairs = append(pairs, "{"+key+"}", val)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body)
}

// smtpMailer sends mail through an SMTP relay using gomail.
type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

var _ Mailer = (*smtpMailer)(nil)

// NewSMTPMailer returns the bundled SMTP Mailer.
func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *smtpMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoEmptyString
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to send mail")
	}
	return nil
}

// logMailer logs outgoing mail instead of sending it, for development.
type logMailer struct {
	logger Logger
}

var _ Mailer = (*logMailer)(nil)

// NewLogMailer returns a Mailer that only logs, for development setups
// without an SMTP relay.
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.logger.Info("mail to=%v subject=%q body=%q", to, subject, body)
	return nil
}
