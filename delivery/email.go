package delivery

import (
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"acctforge/config"
	"acctforge/internal/keys"
	"acctforge/storage/pending"
)

// Mailer sends one credential message. Implemented by the SMTP mailer in
// production and by fakes in tests.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers mail through a configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates an SMTPMailer from the email channel configuration.
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send sends a plain-text message.
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)

// credentialEmailBody renders the credential message sent to the requester.
func credentialEmailBody(rec *pending.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your account %q has been created (tx %s).\n\n", rec.AccountName, rec.CreationTxID)
	fmt.Fprintf(&sb, "Master password:\n  %s\n\n", rec.Seed)
	sb.WriteString("Derived keys:\n")
	for _, role := range keys.Roles {
		pair, ok := rec.Keys[role]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "  %-8s public:  %s\n", role, pair.PublicKey)
		fmt.Fprintf(&sb, "  %-8s private: %s\n", role, pair.PrivateWIF)
	}
	sb.WriteString("\nStore the master password securely; all keys can be re-derived from it.\n")
	return sb.String()
}
