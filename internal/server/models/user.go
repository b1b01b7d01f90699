package models

import "time"

// OtpState is the one-time passcode state attached to an account. Code and
// ExpiresAt are nil whenever no code is outstanding.
type OtpState struct {
	Code         *string
	ExpiresAt    *time.Time
	AttemptsUsed int
	Verified     bool
}

// Pending reports whether a code is currently outstanding.
func (o OtpState) Pending() bool {
	return o.Code != nil
}

type User struct {
	ID            string
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	EmailVerified bool
	Otp           OtpState
	Roles         []Role
	Timestamps
}

// UserView is the public projection of a User.
type UserView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Roles         []string  `json:"roles"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u *User) View() UserView {
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Roles:         RoleNames(u.Roles),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}
