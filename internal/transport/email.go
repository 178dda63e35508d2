package transport

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// EmailConfig configures outgoing mail. An empty Addr turns the transport
// into a log-only stub that reports ErrNotConfigured.
type EmailConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// Email delivers reminders by SMTP.
type Email struct {
	cfg  EmailConfig
	log  *zap.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates an email transport.
func NewEmail(cfg EmailConfig, log *zap.Logger) *Email {
	if log == nil {
		log = zap.NewNop()
	}
	return &Email{cfg: cfg, log: log, send: smtp.SendMail}
}

// Send mails title/body to address.
func (e *Email) Send(ctx context.Context, address, title, body string) error {
	if e.cfg.Addr == "" {
		e.log.Info("email delivery not configured, logging only",
			zap.String("to", address),
			zap.String("title", title),
		)
		return ErrNotConfigured
	}
	if strings.ContainsAny(address, "\r\n") || strings.ContainsAny(title, "\r\n") {
		return fmt.Errorf("email: header injection in %q", address)
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		host := e.cfg.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, host)
	}

	msg := "From: " + e.cfg.From + "\r\n" +
		"To: " + address + "\r\n" +
		"Subject: " + mime.QEncoding.Encode("utf-8", title) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
		body + "\r\n"

	done := make(chan error, 1)
	go func() {
		done <- e.send(e.cfg.Addr, auth, e.cfg.From, []string{address}, []byte(msg))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
