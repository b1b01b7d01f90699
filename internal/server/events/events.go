// Package events publishes domain events to NATS.
package events

import (
	"context"
	"time"
)

// Subjects published by the storefront.
const (
	SubjectUserRegistered    = "user.registered"
	SubjectUserEmailVerified = "user.email_verified"
	SubjectUserPasswordReset = "user.password_reset"
	SubjectCartUpdated       = "cart.updated"
)

type UserEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

type CartEvent struct {
	UserID     string    `json:"user_id"`
	CartID     string    `json:"cart_id"`
	Action     string    `json:"action"`
	ProductID  string    `json:"product_id,omitempty"`
	TotalItems int       `json:"total_items"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher sends an event payload to a subject. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
