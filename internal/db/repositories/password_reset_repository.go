package repositories

import (
	"context"
	"database/sql"
	"time"
)

// PasswordResetRepository stores one bcrypt-hashed reset token per email.
type PasswordResetRepository struct {
	db *sql.DB
}

// NewPasswordResetRepository creates a new PasswordResetRepository
func NewPasswordResetRepository(db *sql.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// PutToken replaces any pending reset token for email.
func (r *PasswordResetRepository) PutToken(ctx context.Context, email, tokenHash string, at time.Time) error {
	query := `
		INSERT INTO password_reset_tokens (email, token, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET token = EXCLUDED.token, created_at = EXCLUDED.created_at
	`
	_, err := r.db.ExecContext(ctx, query, email, tokenHash, at)
	return err
}

// GetToken returns the stored hash and creation time. found is false when no
// token is pending.
func (r *PasswordResetRepository) GetToken(ctx context.Context, email string) (tokenHash string, createdAt time.Time, found bool, err error) {
	query := `SELECT token, created_at FROM password_reset_tokens WHERE email = $1`
	err = r.db.QueryRowContext(ctx, query, email).Scan(&tokenHash, &createdAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	return tokenHash, createdAt, true, nil
}

// DeleteToken removes the pending token for email.
func (r *PasswordResetRepository) DeleteToken(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE email = $1`, email)
	return err
}
