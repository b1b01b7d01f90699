package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUser = `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.email_verified,
		u.otp_code, u.otp_expires_at, u.otp_attempts, u.otp_verified, u.created_at, u.updated_at,
		COALESCE((SELECT string_agg(r.role, ',' ORDER BY r.role) FROM user_roles r WHERE r.user_id = u.id), '')
	 FROM users u`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u       models.User
		code    sql.NullString
		expires sql.NullTime
		roles   string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.EmailVerified,
		&code, &expires, &u.Otp.AttemptsUsed, &u.Otp.Verified, &u.CreatedAt, &u.UpdatedAt, &roles)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		c := code.String
		u.Otp.Code = &c
	}
	if expires.Valid {
		e := expires.Time
		u.Otp.ExpiresAt = &e
	}
	u.Roles = parseRoles(roles)
	return &u, nil
}

func parseRoles(s string) []models.Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]models.Role, 0, len(parts))
	for _, p := range parts {
		if r, err := models.ParseRole(p); err == nil {
			roles = append(roles, r)
		}
	}
	return roles
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, first_name, last_name, email_verified, otp_code, otp_expires_at, otp_attempts, otp_verified)
		 VALUES (lower($1), $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, email, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.FirstName, user.LastName, user.EmailVerified,
		user.Otp.Code, user.Otp.ExpiresAt, user.Otp.AttemptsUsed, user.Otp.Verified,
	).Scan(&user.ID, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE lower(u.email) = lower($1)`, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE u.id = $1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUser+` ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// exec runs an UPDATE and maps zero affected rows to ErrorNotFound.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetOtp(ctx context.Context, userID string, state models.OtpState) error {
	return r.exec(ctx,
		`UPDATE users SET otp_code = $2, otp_expires_at = $3, otp_attempts = $4, otp_verified = $5, updated_at = now()
		 WHERE id = $1`,
		userID, state.Code, state.ExpiresAt, state.AttemptsUsed, state.Verified)
}

func (r *PostgresRepository) ClearOtp(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users SET otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0, otp_verified = FALSE, updated_at = now()
		 WHERE id = $1`,
		userID)
}

func (r *PostgresRepository) IncrementOtpAttempts(ctx context.Context, userID string, max int) (int, error) {
	query :=
		`UPDATE users SET otp_attempts = otp_attempts + 1, updated_at = now()
		 WHERE id = $1 AND otp_code IS NOT NULL AND otp_attempts < $2
		 RETURNING otp_attempts`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, userID, max).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) MarkOtpVerified(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users SET otp_verified = TRUE, updated_at = now()
		 WHERE id = $1 AND otp_code IS NOT NULL`,
		userID)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users SET email_verified = TRUE, otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0, otp_verified = FALSE, updated_at = now()
		 WHERE id = $1`,
		userID)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0, otp_verified = FALSE, updated_at = now()
		 WHERE id = $1`,
		userID, passwordHash)
}

func (r *PostgresRepository) GetRoles(ctx context.Context, userID string) ([]models.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if role, err := models.ParseRole(s); err == nil {
			roles = append(roles, role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return roles, nil
}

func (r *PostgresRepository) AddRole(ctx context.Context, userID string, role models.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id, role) DO NOTHING`,
		userID, string(role))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RemoveRole(ctx context.Context, userID string, role models.Role) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
