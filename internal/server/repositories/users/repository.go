package users

import (
	"context"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// Repository persists user accounts, their roles and their OTP state.
// Emails are matched case-insensitively.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)

	SetOtp(ctx context.Context, userID string, state models.OtpState) error
	ClearOtp(ctx context.Context, userID string) error
	// IncrementOtpAttempts bumps the attempt counter only while a code is
	// pending and the counter is below max. It returns the new count, or
	// common.ErrorNotFound when no row qualified.
	IncrementOtpAttempts(ctx context.Context, userID string, max int) (int, error)
	MarkOtpVerified(ctx context.Context, userID string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	GetRoles(ctx context.Context, userID string) ([]models.Role, error)
	AddRole(ctx context.Context, userID string, role models.Role) error
	RemoveRole(ctx context.Context, userID string, role models.Role) (bool, error)
}
