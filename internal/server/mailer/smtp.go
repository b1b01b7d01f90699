package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/dmitrijs2005/storefront/internal/logging"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	SenderEmail string
	SenderName  string
	// Encryption is "ssl" for implicit TLS, "tls"/"starttls" for STARTTLS, anything else for plain.
	Encryption string
}

// SMTPSender sends mail through an SMTP relay with gomail.
type SMTPSender struct {
	cfg  SMTPConfig
	log  logging.Logger
	send func(m ...*gomail.Message) error
}

func NewSMTPSender(cfg SMTPConfig, log logging.Logger) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.SenderEmail == "" {
		return nil, errors.New("SMTP host, port, and sender email must be configured")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	switch strings.ToLower(cfg.Encryption) {
	case "ssl":
		dialer.SSL = true
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	case "tls", "starttls":
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}

	return &SMTPSender{cfg: cfg, log: log, send: dialer.DialAndSend}, nil
}

func (s *SMTPSender) message(to, subject, html string) *gomail.Message {
	m := gomail.NewMessage()
	if s.cfg.SenderName != "" {
		m.SetAddressHeader("From", s.cfg.SenderEmail, s.cfg.SenderName)
	} else {
		m.SetHeader("From", s.cfg.SenderEmail)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)
	return m
}

// Send dials the relay in a goroutine so ctx cancellation returns promptly;
// an abandoned dial finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	if to == "" {
		return errors.New("no recipient provided for email")
	}

	m := s.message(to, subject, html)

	done := make(chan error, 1)
	go func() {
		done <- s.send(m)
	}()

	select {
	case <-ctx.Done():
		s.log.Warn(ctx, "email sending cancelled", "to", to, "subject", subject, "error", ctx.Err())
		return fmt.Errorf("email sending cancelled or timed out: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			s.log.Error(ctx, "failed to send email", "to", to, "subject", subject, "error", err)
			return fmt.Errorf("failed to send email: %w", err)
		}
	}

	s.log.Info(ctx, "email sent", "to", to, "subject", subject)
	return nil
}
