// Package email provides message composition and SMTP delivery for casa.
package email

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Config holds SMTP connection settings.
type Config struct {
	Host string `env:"SMTP_HOST"`
	Port string `env:"SMTP_PORT" envDefault:"587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	From string `env:"SMTP_FROM" envDefault:"noreply@casa.local"`
}

// IsConfigured returns true if SMTP settings are present.
func (c Config) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// Sender delivers a plain-text message.
type Sender interface {
	Send(to []string, subject, body string) error
}

// NewSender returns an SMTP sender, or a log-only sender in dev mode.
func NewSender(cfg Config, devMode bool) Sender {
	if devMode {
		return LogSender{}
	}
	return &SMTPSender{cfg: cfg}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

// Send logs the message at info level.
func (LogSender) Send(to []string, subject, body string) error {
	slog.Info("[DEV] email", "to", strings.Join(to, ", "), "subject", subject, "body", body)
	return nil
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg Config
}

// Send sends an email via SMTP.
// Supports both port 465 (implicit TLS) and port 587 (STARTTLS).
func (s *SMTPSender) Send(to []string, subject, body string) error {
	cfg := s.cfg
	if !cfg.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}

	msg := buildMessage(cfg.From, to, subject, body)
	addr := cfg.Host + ":" + cfg.Port

	if cfg.Port == "465" {
		return sendImplicitTLS(cfg, addr, to, msg)
	}
	return sendSTARTTLS(cfg, addr, to, msg)
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

// sendImplicitTLS connects over TLS directly (port 465/SMTPS).
func sendImplicitTLS(cfg Config, addr string, to []string, msg []byte) (err error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() {
		if quitErr := c.Quit(); quitErr != nil && err == nil {
			err = fmt.Errorf("quit: %w", quitErr)
		}
	}()

	if cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return nil
}

// sendSTARTTLS connects plain then upgrades to TLS (port 587).
func sendSTARTTLS(cfg Config, addr string, to []string, msg []byte) error {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, cfg.From, to, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
