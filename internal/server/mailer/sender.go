// Package mailer renders and delivers transactional e-mails.
package mailer

import "context"

// EmailSender delivers one HTML message to one recipient.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}
