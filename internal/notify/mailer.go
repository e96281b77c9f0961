package notify

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends reminder emails over SMTP. The capability is optional: when
// no SMTP host is configured the constructor returns nil and callers log the
// reminder instead of sending it.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// Config holds the SMTP settings. A zero Host disables the mailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// New builds a mailer from config, or nil when SMTP is not configured.
func New(cfg Config) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

// Send delivers one plain-text email. Each call dials a fresh SMTP
// connection; reminder volume is a handful of mails per minute at most.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
