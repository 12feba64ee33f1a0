package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// APITokenRepository handles bearer token persistence. Tokens are always
// looked up by their sha256 digest.
type APITokenRepository struct {
	db *sql.DB
}

// NewAPITokenRepository creates a new APITokenRepository
func NewAPITokenRepository(db *sql.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// CreateToken inserts a token record; token.Token must already be hashed.
func (r *APITokenRepository) CreateToken(ctx context.Context, token *models.APIToken) error {
	now := time.Now()
	query := `
		INSERT INTO api_tokens (user_id, name, token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		token.UserID,
		token.Name,
		token.Token,
		token.ExpiresAt,
		now,
	).Scan(&token.ID); err != nil {
		return err
	}
	token.CreatedAt = now
	token.UpdatedAt = now
	return nil
}

// GetValidTokenByHash returns the token with the given digest if it has no
// expiry or expires after now.
func (r *APITokenRepository) GetValidTokenByHash(ctx context.Context, tokenHash string, now time.Time) (*models.APIToken, error) {
	query := `
		SELECT id, user_id, name, token, expires_at, last_used_at, created_at, updated_at
		FROM api_tokens
		WHERE token = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	token := &models.APIToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.Token,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// UpdateLastUsed stamps last_used_at for a token.
func (r *APITokenRepository) UpdateLastUsed(ctx context.Context, tokenID int64, at time.Time) error {
	query := `UPDATE api_tokens SET last_used_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, tokenID, at)
	return err
}

// DeleteByHash revokes the token with the given digest.
func (r *APITokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE token = $1`, tokenHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByUser revokes every token owned by a user.
func (r *APITokenRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes tokens that expired before now.
func (r *APITokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
