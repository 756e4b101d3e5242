package tasks

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	log "github.com/sirupsen/logrus"

	"conference-central/internal/config"
	"conference-central/internal/domain"
)

// NewMailer returns an SMTP mailer when a relay is configured and a
// LogMailer otherwise.
func NewMailer(cfg config.Mail, logger *log.Logger) (domain.Mailer, error) {
	if cfg.SMTPAddr == "" {
		return LogMailer{Logger: logger}, nil
	}
	return NewSMTPMailer(cfg.SMTPAddr, cfg.From, cfg.Username, cfg.Password)
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{"to": to, "subject": subject, "bytes": len(body)}).Info("mail suppressed")
	return nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPMailer creates a mailer for addr (host:port). PLAIN auth is used
// when username is set.
func NewSMTPMailer(addr, from, username, password string) (*SMTPMailer, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp address %q: %w", addr, err)
	}
	if from == "" {
		return nil, fmt.Errorf("smtp sender address required")
	}
	m := &SMTPMailer{addr: addr, from: from, sendMail: smtp.SendMail}
	if username != "" {
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("%w: header contains line break", ErrPermanent)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	if err := m.sendMail(m.addr, m.auth, m.from, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
