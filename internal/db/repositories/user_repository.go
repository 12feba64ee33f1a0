// Package repositories implements the data access layer for the EMS API.
// Each repository owns the queries for one entity; handlers and services never
// issue SQL directly. Lookups that find nothing return (nil, nil).
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

const userColumns = `id, name, email, password, role, status, is_suspended, customer_id,
	email_verified_at, two_factor_secret, two_factor_recovery_codes, two_factor_confirmed_at,
	created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Password,
		&user.Role,
		&user.Status,
		&user.IsSuspended,
		&user.CustomerID,
		&user.EmailVerifiedAt,
		&user.TwoFactorSecret,
		&user.TwoFactorRecoveryCodes,
		&user.TwoFactorConfirmedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a user and fills in the generated ID and timestamps.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	query := `
		INSERT INTO users (name, email, password, role, status, is_suspended, customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Name,
		user.Email,
		user.Password,
		user.Role,
		user.Status,
		user.IsSuspended,
		user.CustomerID,
		now,
	).Scan(&user.ID)
	if err != nil {
		return err
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// GetUserByEmail retrieves a user by email (case-insensitive)
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

// ListUsers returns every user ordered by ID.
func (r *UserRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser applies an administrator update and returns the stored row.
// Only fields set in upd are written.
func (r *UserRepository) UpdateUser(ctx context.Context, userID int64, upd models.UserUpdate) (*models.User, error) {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.IsSuspended != nil {
		add("is_suspended", *upd.IsSuspended)
	}
	if upd.CustomerID != nil {
		add("customer_id", *upd.CustomerID)
	}
	add("updated_at", time.Now())
	args = append(args, userID)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	return r.getOne(ctx, query, args...)
}

// UpdateProfile changes name and email. When clearVerification is set the
// email_verified_at timestamp is reset.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, name, email string, clearVerification bool) error {
	query := `
		UPDATE users
		SET name = $2, email = $3,
		    email_verified_at = CASE WHEN $4 THEN NULL ELSE email_verified_at END,
		    updated_at = $5
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, name, email, clearVerification, time.Now())
	return err
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	query := `UPDATE users SET password = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now())
	return err
}

// MarkEmailVerified stamps email_verified_at.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID int64, at time.Time) error {
	query := `UPDATE users SET email_verified_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, at)
	return err
}

// SetTwoFactorSecret stores a new encrypted secret and drops any previous
// confirmation, so enrollment must be confirmed again.
func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, userID int64, encryptedSecret string) error {
	query := `
		UPDATE users
		SET two_factor_secret = $2, two_factor_confirmed_at = NULL, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, encryptedSecret, time.Now())
	return err
}

// ConfirmTwoFactor marks enrollment confirmed and stores the encrypted
// recovery code set.
func (r *UserRepository) ConfirmTwoFactor(ctx context.Context, userID int64, encryptedCodes string, at time.Time) error {
	query := `
		UPDATE users
		SET two_factor_confirmed_at = $2, two_factor_recovery_codes = $3, updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, at, encryptedCodes)
	return err
}

// SetRecoveryCodes overwrites the encrypted recovery code set.
func (r *UserRepository) SetRecoveryCodes(ctx context.Context, userID int64, encryptedCodes string) error {
	query := `UPDATE users SET two_factor_recovery_codes = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, encryptedCodes, time.Now())
	return err
}

// SwapRecoveryCodes replaces the recovery code set only if it still equals
// previous. It returns false when another request changed the set first.
func (r *UserRepository) SwapRecoveryCodes(ctx context.Context, userID int64, previous *string, next string) (bool, error) {
	query := `
		UPDATE users
		SET two_factor_recovery_codes = $3, updated_at = $4
		WHERE id = $1 AND two_factor_recovery_codes IS NOT DISTINCT FROM $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, previous, next, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DisableTwoFactor clears the secret, recovery codes and confirmation.
func (r *UserRepository) DisableTwoFactor(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET two_factor_secret = NULL, two_factor_recovery_codes = NULL,
		    two_factor_confirmed_at = NULL, updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now())
	return err
}

// CountByRole returns the number of users per role.
func (r *UserRepository) CountByRole(ctx context.Context) ([]models.RoleCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT role, COUNT(*) AS total FROM users GROUP BY role ORDER BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]models.RoleCount, 0)
	for rows.Next() {
		var rc models.RoleCount
		if err := rows.Scan(&rc.Role, &rc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, rc)
	}
	return counts, rows.Err()
}
