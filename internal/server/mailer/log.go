package mailer

import (
	"context"

	"github.com/dmitrijs2005/storefront/internal/logging"
)

// LogSender writes messages to the log instead of delivering them. It is
// used when no SMTP relay is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, subject, html string) error {
	s.log.Info(ctx, "email not delivered (no SMTP relay configured)", "to", to, "subject", subject)
	s.log.Debug(ctx, "email body", "to", to, "html", html)
	return nil
}
