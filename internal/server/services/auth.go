// Package services contains server-side business logic. This file implements
// AuthService: registration with e-mail verification, login, token refresh
// and the passcode driven password reset.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/events"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/otp"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/users"
	"github.com/dmitrijs2005/storefront/internal/timex"
)

const (
	MsgRegistered     = "Registration successful. Please check your email for the verification code."
	MsgCodeResent     = "An account with this email is awaiting verification. A new verification code has been sent."
	MsgLoggedOut      = "Logged out successfully. Please discard the token on the client."
	MsgResetRequested = "If an account with this email exists, a password reset code has been sent."
)

// AuthResult is returned by Login and RefreshToken.
type AuthResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      models.UserView `json:"user"`
}

// AuthDeps bundles the collaborators of AuthService.
type AuthDeps struct {
	Tokens    *auth.TokenManager
	Hasher    auth.PasswordHasher
	Mail      mailer.EmailSender
	Publisher events.Publisher
	Log       logging.Logger
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenManager
	hasher      auth.PasswordHasher
	mail        mailer.EmailSender
	events      events.Publisher
	log         logging.Logger

	loginValidity   time.Duration
	refreshValidity time.Duration
	otpValidity     time.Duration
	otpMaxAttempts  int

	now     timex.Clock
	genCode otp.Generator

	// dummyHash is compared against on unknown emails so Login costs the
	// same whether or not the account exists.
	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, deps AuthDeps, cfg *config.Config) *AuthService {
	s := &AuthService{
		db:              db,
		repomanager:     m,
		tokens:          deps.Tokens,
		hasher:          deps.Hasher,
		mail:            deps.Mail,
		events:          deps.Publisher,
		log:             deps.Log,
		loginValidity:   cfg.LoginTokenValidityDuration,
		refreshValidity: cfg.RefreshTokenValidityDuration,
		otpValidity:     cfg.OtpValidityDuration,
		otpMaxAttempts:  cfg.OtpMaxAttempts,
		now:             timex.UTCNow,
		genCode:         otp.GenerateCode,
	}
	if s.hasher == nil {
		s.hasher = auth.NewBcryptHasher()
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified Customer account and mails it a passcode.
// Registering again while unverified only re-issues the passcode.
func (s *AuthService) Register(ctx context.Context, email, password, firstName, lastName string) (string, error) {
	email = normalizeEmail(email)

	var (
		user    *models.User
		created bool
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		existing, err := repo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if existing.EmailVerified {
				return common.ErrorConflict
			}
			state, err := otp.Issue(s.now(), s.otpValidity, s.genCode)
			if err != nil {
				return err
			}
			if err := repo.SetOtp(ctx, existing.ID, state); err != nil {
				return err
			}
			existing.Otp = state
			user = existing
			return nil

		case errors.Is(err, common.ErrorNotFound):
			hash, err := s.hasher.Hash(password)
			if err != nil {
				return err
			}
			state, err := otp.Issue(s.now(), s.otpValidity, s.genCode)
			if err != nil {
				return err
			}
			user, err = repo.Create(ctx, &models.User{
				Email:        email,
				PasswordHash: hash,
				FirstName:    firstName,
				LastName:     lastName,
				Otp:          state,
			})
			if err != nil {
				return err
			}
			if err := repo.AddRole(ctx, user.ID, models.RoleCustomer); err != nil {
				return err
			}
			user.Roles = []models.Role{models.RoleCustomer}
			created = true
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return "", s.fail(ctx, "register", err, common.ErrorConflict)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return "", err
	}

	if !created {
		return MsgCodeResent, nil
	}
	s.publish(ctx, events.SubjectUserRegistered, events.UserEvent{UserID: user.ID, Email: user.Email, Timestamp: s.now()})
	return MsgRegistered, nil
}

// VerifyEmail checks code against the pending verification passcode and
// marks the e-mail verified on a match.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (bool, error) {
	email = normalizeEmail(email)

	var verdict error
	var user *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		var err error
		user, err = repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user.EmailVerified {
			return common.ErrAlreadyVerified
		}

		verdict, err = s.checkCode(ctx, repo, user, code)
		if err != nil || verdict != nil {
			return err
		}
		return repo.MarkEmailVerified(ctx, user.ID)
	})
	if err != nil {
		return false, s.fail(ctx, "verify email", err, common.ErrorNotFound, common.ErrAlreadyVerified)
	}
	if verdict != nil {
		return false, verdict
	}

	s.publish(ctx, events.SubjectUserEmailVerified, events.UserEvent{UserID: user.ID, Email: user.Email, Timestamp: s.now()})
	return true, nil
}

// ResendVerificationCode re-issues the verification passcode of an
// unverified account.
func (s *AuthService) ResendVerificationCode(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return false, s.fail(ctx, "resend verification", err, common.ErrorNotFound)
	}
	if user.EmailVerified {
		return false, common.ErrAlreadyVerified
	}

	state, err := otp.Issue(s.now(), s.otpValidity, s.genCode)
	if err != nil {
		return false, s.fail(ctx, "resend verification", err)
	}
	if err := repo.SetOtp(ctx, user.ID, state); err != nil {
		return false, s.fail(ctx, "resend verification", err, common.ErrorNotFound)
	}
	user.Otp = state

	if err := s.sendVerification(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// Login checks credentials and issues a session token. The password is
// checked before the verification flag.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.compareDummy(password)
			return nil, common.ErrorUnauthorized
		}
		return nil, s.fail(ctx, "login", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.fail(ctx, "login", err)
	}

	if !user.EmailVerified {
		return nil, common.ErrEmailNotVerified
	}

	return s.issue(ctx, user, s.loginValidity)
}

func (s *AuthService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("unknown-account-placeholder")
	})
	_ = s.hasher.Compare(s.dummyHash, password)
}

// Logout is advisory. Tokens stay valid until they expire.
func (s *AuthService) Logout(context.Context) string {
	return MsgLoggedOut
}

// RefreshToken validates token and issues a fresh one carrying the user's
// current roles.
func (s *AuthService) RefreshToken(ctx context.Context, token string) (*AuthResult, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.fail(ctx, "refresh token", err)
	}

	return s.issue(ctx, user, s.refreshValidity)
}

// ForgotPassword mails a reset passcode when the account exists. An unknown
// email still reports success; a failed dispatch is common.ErrEmailDispatch.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return true, nil
		}
		return false, s.fail(ctx, "forgot password", err)
	}

	state, err := otp.Issue(s.now(), s.otpValidity, s.genCode)
	if err != nil {
		return false, s.fail(ctx, "forgot password", err)
	}
	if err := repo.SetOtp(ctx, user.ID, state); err != nil {
		return false, s.fail(ctx, "forgot password", err)
	}

	body, err := mailer.PasswordReset(user.FirstName, *state.Code, s.otpValidity, s.otpMaxAttempts)
	if err != nil {
		s.log.Error(ctx, "render password reset email", "error", err)
		return false, common.ErrEmailDispatch
	}
	if err := s.mail.Send(ctx, user.Email, mailer.PasswordResetSubject, body); err != nil {
		s.log.Error(ctx, "password reset email failed", "user_id", user.ID, "error", err)
		return false, common.ErrEmailDispatch
	}

	return true, nil
}

// VerifyOtp checks a reset passcode and marks it verified. The code stays
// pending for ResetPassword.
func (s *AuthService) VerifyOtp(ctx context.Context, email, code string) (bool, error) {
	email = normalizeEmail(email)

	var verdict error

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByEmail(ctx, email)
		if errors.Is(err, common.ErrorNotFound) {
			verdict = common.ErrNoPendingCode
			return nil
		}
		if err != nil {
			return err
		}

		verdict, err = s.checkCode(ctx, repo, user, code)
		if err != nil || verdict != nil {
			return err
		}
		return repo.MarkOtpVerified(ctx, user.ID)
	})
	if err != nil {
		return false, s.fail(ctx, "verify otp", err)
	}
	if verdict != nil {
		return false, verdict
	}
	return true, nil
}

// ResetPassword replaces the password once the reset passcode has been
// verified, then clears the passcode state.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) (bool, error) {
	email = normalizeEmail(email)

	var verdict error
	var user *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		var err error
		user, err = repo.GetByEmail(ctx, email)
		if errors.Is(err, common.ErrorNotFound) {
			verdict = common.ErrNoPendingCode
			return nil
		}
		if err != nil {
			return err
		}

		verdict, err = s.checkCode(ctx, repo, user, code)
		if err != nil || verdict != nil {
			return err
		}
		if !user.Otp.Verified {
			verdict = fmt.Errorf("%w: code has not been verified", common.ErrInvalidCode)
			return nil
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		return repo.UpdatePassword(ctx, user.ID, hash)
	})
	if err != nil {
		return false, s.fail(ctx, "reset password", err)
	}
	if verdict != nil {
		return false, verdict
	}

	s.publish(ctx, events.SubjectUserPasswordReset, events.UserEvent{UserID: user.ID, Email: user.Email, Timestamp: s.now()})
	return true, nil
}

// Profile returns the account view of userID.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserView, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "profile", err, common.ErrorNotFound)
	}
	v := user.View()
	return &v, nil
}

// Provision creates an already verified account with roles. It backs the
// administrative CLI and skips the e-mail round trip.
func (s *AuthService) Provision(ctx context.Context, email, password, firstName, lastName string, roles ...models.Role) (*models.UserView, error) {
	email = normalizeEmail(email)
	if len(roles) == 0 {
		roles = []models.Role{models.RoleCustomer}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.fail(ctx, "provision", err)
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		var err error
		user, err = repo.Create(ctx, &models.User{
			Email:         email,
			PasswordHash:  hash,
			FirstName:     firstName,
			LastName:      lastName,
			EmailVerified: true,
		})
		if err != nil {
			return err
		}
		for _, r := range roles {
			if err := repo.AddRole(ctx, user.ID, r); err != nil {
				return err
			}
		}
		user.Roles = roles
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "provision", err, common.ErrorConflict)
	}

	v := user.View()
	return &v, nil
}

// checkCode evaluates code against the user's passcode state and applies the
// resulting state change. A non-nil verdict is a user-facing rejection that
// must still be committed; err is a storage failure.
func (s *AuthService) checkCode(ctx context.Context, repo users.Repository, user *models.User, code string) (verdict error, err error) {
	outcome := otp.Evaluate(user.Otp, code, s.now(), s.otpMaxAttempts)

	switch outcome {
	case otp.Match:
		return nil, nil

	case otp.NoPending:
		return common.ErrNoPendingCode, nil

	case otp.Expired:
		if err := repo.ClearOtp(ctx, user.ID); err != nil {
			return nil, err
		}
		return common.ErrCodeExpired, nil

	case otp.Exhausted:
		if err := repo.ClearOtp(ctx, user.ID); err != nil {
			return nil, err
		}
		return common.ErrAttemptsExhausted, nil
	}

	used, err := repo.IncrementOtpAttempts(ctx, user.ID, s.otpMaxAttempts)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	// NotFound means a concurrent request already used the last attempt.
	if err != nil || used >= s.otpMaxAttempts {
		if err := repo.ClearOtp(ctx, user.ID); err != nil {
			return nil, err
		}
		return common.ErrAttemptsExhausted, nil
	}

	s.log.Warn(ctx, "wrong passcode", "user_id", user.ID, "attempts_used", used)
	return &common.OtpError{Remaining: s.otpMaxAttempts - used}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) error {
	body, err := mailer.Verification(user.FirstName, *user.Otp.Code, s.otpValidity, s.otpMaxAttempts)
	if err != nil {
		s.log.Error(ctx, "render verification email", "error", err)
		return common.ErrEmailDispatch
	}
	if err := s.mail.Send(ctx, user.Email, mailer.VerificationSubject, body); err != nil {
		s.log.Error(ctx, "verification email failed", "user_id", user.ID, "error", err)
		return common.ErrEmailDispatch
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User, validity time.Duration) (*AuthResult, error) {
	token, expires, err := s.tokens.Issue(auth.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     models.RoleNames(user.Roles),
	}, validity)
	if err != nil {
		return nil, s.fail(ctx, "issue token", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expires, User: user.View()}, nil
}

func (s *AuthService) publish(ctx context.Context, subject string, event any) {
	if err := s.events.Publish(ctx, subject, event); err != nil {
		s.log.Warn(ctx, "publish event", "subject", subject, "error", err)
	}
}

// fail passes known service errors through and turns anything else into
// common.ErrorInternal after logging it.
func (s *AuthService) fail(ctx context.Context, op string, err error, known ...error) error {
	return translate(ctx, s.log, op, err, known...)
}
