package mailer

import (
	"net/mail"
	"strings"

	"github.com/easytransac/easytransac-bridge/infra/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends anomaly notifications to the configured operator addresses.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// New creates a mailer from SMTP settings.
func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.From,
	}
}

// Send delivers the message to every recipient. Recipients are assumed to be
// pre-validated; delivery stops at the first transport error.
func (m *Mailer) Send(to []string, subject, body string) error {
	for _, dest := range to {
		msg := gomail.NewMessage()
		msg.SetHeader("From", m.from)
		msg.SetHeader("To", dest)
		msg.SetHeader("Subject", subject)
		msg.SetBody("text/plain", body)

		if err := m.dialer.DialAndSend(msg); err != nil {
			return err
		}
	}
	return nil
}

// SplitRecipients parses a comma or semicolon separated address list and
// keeps only syntactically valid addresses.
func SplitRecipients(list string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out
}
