package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/events"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type authFixture struct {
	svc    *AuthService
	rm     *fakeRepoManager
	mail   *fakeMailer
	pub    *fakePublisher
	clock  *fakeClock
	tokens *auth.TokenManager
	codes  []string
}

func newAuthFixture(t *testing.T, db *sql.DB) *authFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()

	f := &authFixture{
		rm:     newFakeRepoManager(),
		mail:   &fakeMailer{},
		pub:    &fakePublisher{},
		clock:  newFakeClock(),
		tokens: auth.NewTokenManager("test-secret", cfg.TokenIssuer, cfg.TokenAudience),
		codes:  []string{"123456"},
	}
	f.svc = NewAuthService(db, f.rm, AuthDeps{
		Tokens:    f.tokens,
		Hasher:    plainHasher{},
		Mail:      f.mail,
		Publisher: f.pub,
	}, cfg)
	f.svc.now = f.clock.Now
	f.svc.genCode = func() (string, error) {
		code := f.codes[0]
		if len(f.codes) > 1 {
			f.codes = f.codes[1:]
		}
		return code, nil
	}
	return f
}

func (f *authFixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.rm.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func TestRegister_CreatesUnverifiedAccountWithPendingCode(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)

	msg, err := f.svc.Register(context.Background(), " Alice@Example.com ", "secret1", "Alice", "Liddell")
	require.NoError(t, err)
	assert.Equal(t, MsgRegistered, msg)

	u := f.user(t, "alice@example.com")
	assert.False(t, u.EmailVerified)
	assert.Equal(t, []models.Role{models.RoleCustomer}, u.Roles)
	require.True(t, u.Otp.Pending())
	assert.Equal(t, "123456", *u.Otp.Code)
	assert.Zero(t, u.Otp.AttemptsUsed)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), *u.Otp.ExpiresAt)

	sent := f.mail.last()
	assert.Equal(t, "alice@example.com", sent.To)
	assert.Contains(t, sent.HTML, "123456")
	assert.Equal(t, []string{events.SubjectUserRegistered}, f.pub.subjects())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_UnverifiedRetryReissuesCode(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	f.codes = []string{"111111", "222222"}
	expectCommit(mock)
	expectCommit(mock)

	_, err := f.svc.Register(context.Background(), "bob@example.com", "secret1", "Bob", "")
	require.NoError(t, err)

	msg, err := f.svc.Register(context.Background(), "bob@example.com", "secret1", "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, MsgCodeResent, msg)

	list, _ := f.rm.users.List(context.Background())
	assert.Len(t, list, 1)
	assert.Equal(t, "222222", *f.user(t, "bob@example.com").Otp.Code)
	assert.Len(t, f.mail.sent, 2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_VerifiedAccountConflicts(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	_, err := f.rm.users.Create(context.Background(), &models.User{Email: "carol@example.com", EmailVerified: true})
	require.NoError(t, err)
	expectRollback(mock)

	_, err = f.svc.Register(context.Background(), "carol@example.com", "secret1", "", "")
	assert.ErrorIs(t, err, common.ErrorConflict)
	assert.Empty(t, f.mail.sent)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_EmailFailureReportsDispatch(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	f.mail.err = errBoom
	expectCommit(mock)

	_, err := f.svc.Register(context.Background(), "dave@example.com", "secret1", "", "")
	assert.ErrorIs(t, err, common.ErrEmailDispatch)
	assert.NotContains(t, err.Error(), "boom")

	// the account is committed so a retry takes the resend path
	assert.False(t, f.user(t, "dave@example.com").EmailVerified)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_StorageErrorIsInternal(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	f.rm.users.err = errBoom
	expectRollback(mock)

	_, err := f.svc.Register(context.Background(), "erin@example.com", "secret1", "", "")
	assert.ErrorIs(t, err, common.ErrorInternal)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyEmail_CorrectCodeVerifiesOnce(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)
	_, err := f.svc.Register(context.Background(), "frank@example.com", "secret1", "", "")
	require.NoError(t, err)

	expectCommit(mock)
	ok, err := f.svc.VerifyEmail(context.Background(), "frank@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	u := f.user(t, "frank@example.com")
	assert.True(t, u.EmailVerified)
	assert.False(t, u.Otp.Pending())
	assert.Zero(t, u.Otp.AttemptsUsed)
	assert.Contains(t, f.pub.subjects(), events.SubjectUserEmailVerified)

	expectRollback(mock)
	_, err = f.svc.VerifyEmail(context.Background(), "frank@example.com", "123456")
	assert.ErrorIs(t, err, common.ErrAlreadyVerified)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyEmail_ThreeWrongCodesClearState(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)
	_, err := f.svc.Register(context.Background(), "gina@example.com", "secret1", "", "")
	require.NoError(t, err)

	for _, remaining := range []int{2, 1} {
		expectCommit(mock)
		ok, err := f.svc.VerifyEmail(context.Background(), "gina@example.com", "000000")
		assert.False(t, ok)

		var oe *common.OtpError
		require.True(t, errors.As(err, &oe), "got %v", err)
		assert.Equal(t, remaining, oe.Remaining)
		assert.ErrorIs(t, err, common.ErrInvalidCode)
	}
	assert.Equal(t, 2, f.user(t, "gina@example.com").Otp.AttemptsUsed)

	expectCommit(mock)
	_, err = f.svc.VerifyEmail(context.Background(), "gina@example.com", "000000")
	assert.ErrorIs(t, err, common.ErrAttemptsExhausted)
	assert.False(t, f.user(t, "gina@example.com").Otp.Pending())

	// even the right code is rejected now
	expectCommit(mock)
	_, err = f.svc.VerifyEmail(context.Background(), "gina@example.com", "123456")
	assert.ErrorIs(t, err, common.ErrNoPendingCode)
	assert.False(t, f.user(t, "gina@example.com").EmailVerified)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyEmail_ExpiredCodeClearsState(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)
	_, err := f.svc.Register(context.Background(), "hank@example.com", "secret1", "", "")
	require.NoError(t, err)

	f.clock.Advance(10*time.Minute + time.Second)

	expectCommit(mock)
	_, err = f.svc.VerifyEmail(context.Background(), "hank@example.com", "123456")
	assert.ErrorIs(t, err, common.ErrCodeExpired)
	assert.False(t, f.user(t, "hank@example.com").Otp.Pending())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyEmail_AtExpiryInstantStillValid(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)
	_, err := f.svc.Register(context.Background(), "ivy@example.com", "secret1", "", "")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)

	expectCommit(mock)
	ok, err := f.svc.VerifyEmail(context.Background(), "ivy@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyEmail_UnknownEmail(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectRollback(mock)

	_, err := f.svc.VerifyEmail(context.Background(), "nobody@example.com", "123456")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResendVerificationCode(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	f.codes = []string{"111111", "333333"}
	expectCommit(mock)
	_, err := f.svc.Register(context.Background(), "jack@example.com", "secret1", "", "")
	require.NoError(t, err)

	ok, err := f.svc.ResendVerificationCode(context.Background(), "jack@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "333333", *f.user(t, "jack@example.com").Otp.Code)
	assert.Contains(t, f.mail.last().HTML, "333333")

	_, err = f.svc.ResendVerificationCode(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, f.rm.users.MarkEmailVerified(context.Background(), f.user(t, "jack@example.com").ID))
	_, err = f.svc.ResendVerificationCode(context.Background(), "jack@example.com")
	assert.ErrorIs(t, err, common.ErrAlreadyVerified)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_Flows(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)
	_, err := f.svc.Register(context.Background(), "kate@example.com", "secret1", "Kate", "Bush")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	// wrong password on an unverified account does not reveal its state
	_, err = f.svc.Login(ctx, "kate@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Login(ctx, "kate@example.com", "secret1")
	assert.ErrorIs(t, err, common.ErrEmailNotVerified)

	expectCommit(mock)
	_, err = f.svc.VerifyEmail(ctx, "kate@example.com", "123456")
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "KATE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "kate@example.com", res.User.Email)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), res.ExpiresAt, time.Minute)

	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)
	assert.Equal(t, []string{"Customer"}, claims.Roles)
	assert.Equal(t, "Kate", claims.FirstName)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_UnknownEmailStillComparesPassword(t *testing.T) {
	db, _ := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	h := &countingHasher{}
	f.svc.hasher = h
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 1, h.compares)

	_, err = f.svc.Login(ctx, "nobody@example.com", "secret2")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 2, h.compares)
	assert.Equal(t, 1, h.hashes)
}

func TestLogin_StorageErrorIsInternal(t *testing.T) {
	db, _ := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	f.rm.users.err = errBoom

	_, err := f.svc.Login(context.Background(), "a@example.com", "secret1")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRefreshToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	ctx := context.Background()

	u, err := f.rm.users.Create(ctx, &models.User{Email: "leo@example.com", EmailVerified: true})
	require.NoError(t, err)
	require.NoError(t, f.rm.users.AddRole(ctx, u.ID, models.RoleCustomer))

	old, _, err := f.tokens.Issue(auth.Identity{UserID: u.ID, Email: u.Email}, time.Hour)
	require.NoError(t, err)

	// roles granted after the old token show up in the fresh one
	require.NoError(t, f.rm.users.AddRole(ctx, u.ID, models.RoleAdmin))

	res, err := f.svc.RefreshToken(ctx, old)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), res.ExpiresAt, time.Minute)

	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Customer", "Admin"}, claims.Roles)

	_, err = f.svc.RefreshToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	forged, _, err := auth.NewTokenManager("other-secret", "storefront", "storefront-clients").
		Issue(auth.Identity{UserID: u.ID}, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.RefreshToken(ctx, forged)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	ghost, _, err := f.tokens.Issue(auth.Identity{UserID: "missing"}, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.RefreshToken(ctx, ghost)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestForgotPassword_DoesNotRevealAccounts(t *testing.T) {
	db, _ := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	ctx := context.Background()

	ok, err := f.svc.ForgotPassword(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.mail.sent)

	_, err = f.rm.users.Create(ctx, &models.User{Email: "mia@example.com", EmailVerified: true})
	require.NoError(t, err)

	f.mail.err = errBoom
	ok, err = f.svc.ForgotPassword(ctx, "mia@example.com")
	assert.ErrorIs(t, err, common.ErrEmailDispatch)
	assert.False(t, ok)
	assert.True(t, f.user(t, "mia@example.com").Otp.Pending())
}

func TestPasswordReset_FullFlow(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	ctx := context.Background()

	_, err := f.rm.users.Create(ctx, &models.User{Email: "nina@example.com", PasswordHash: "hashed:old-pass", EmailVerified: true})
	require.NoError(t, err)

	_, err = f.svc.ForgotPassword(ctx, "nina@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Your password reset code", f.mail.last().Subject)

	// reset before the code is verified is refused
	expectCommit(mock)
	_, err = f.svc.ResetPassword(ctx, "nina@example.com", "123456", "new-pass")
	assert.ErrorIs(t, err, common.ErrInvalidCode)

	expectCommit(mock)
	ok, err := f.svc.VerifyOtp(ctx, "nina@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
	u := f.user(t, "nina@example.com")
	assert.True(t, u.Otp.Verified)
	assert.True(t, u.Otp.Pending())

	expectCommit(mock)
	ok, err = f.svc.ResetPassword(ctx, "nina@example.com", "123456", "new-pass")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, f.user(t, "nina@example.com").Otp.Pending())
	assert.Contains(t, f.pub.subjects(), events.SubjectUserPasswordReset)

	_, err = f.svc.Login(ctx, "nina@example.com", "old-pass")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.svc.Login(ctx, "nina@example.com", "new-pass")
	assert.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOtp_UnknownEmailLooksLikeNoCode(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	expectCommit(mock)

	_, err := f.svc.VerifyOtp(context.Background(), "nobody@example.com", "123456")
	assert.ErrorIs(t, err, common.ErrNoPendingCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPassword_ExpiredCode(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	ctx := context.Background()

	_, err := f.rm.users.Create(ctx, &models.User{Email: "olga@example.com", EmailVerified: true})
	require.NoError(t, err)
	_, err = f.svc.ForgotPassword(ctx, "olga@example.com")
	require.NoError(t, err)

	expectCommit(mock)
	_, err = f.svc.VerifyOtp(ctx, "olga@example.com", "123456")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)

	expectCommit(mock)
	_, err = f.svc.ResetPassword(ctx, "olga@example.com", "123456", "new-pass")
	assert.ErrorIs(t, err, common.ErrCodeExpired)
	assert.False(t, f.user(t, "olga@example.com").Otp.Pending())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvision_CreatesVerifiedAccount(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	ctx := context.Background()
	expectCommit(mock)

	v, err := f.svc.Provision(ctx, "Root@Example.com", "secret1", "Root", "", models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, v.EmailVerified)
	assert.Equal(t, []string{"Admin"}, v.Roles)

	res, err := f.svc.Login(ctx, "root@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(res.Token, "."))

	expectRollback(mock)
	_, err = f.svc.Provision(ctx, "root@example.com", "secret1", "", "", models.RoleAdmin)
	assert.ErrorIs(t, err, common.ErrorConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfile(t *testing.T) {
	db, _ := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	ctx := context.Background()

	u, err := f.rm.users.Create(ctx, &models.User{Email: "pam@example.com", FirstName: "Pam", EmailVerified: true})
	require.NoError(t, err)

	v, err := f.svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pam", v.FirstName)

	_, err = f.svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPublishFailureDoesNotFailRegister(t *testing.T) {
	db, mock := newSQLMockDB(t)
	f := newAuthFixture(t, db)
	f.pub.err = errBoom
	expectCommit(mock)

	_, err := f.svc.Register(context.Background(), "quinn@example.com", "secret1", "", "")
	assert.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
