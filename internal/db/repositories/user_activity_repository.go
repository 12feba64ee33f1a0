package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// UserActivityRepository stores and reads the user activity log.
type UserActivityRepository struct {
	db *sqlx.DB
}

// NewUserActivityRepository creates a new UserActivityRepository
func NewUserActivityRepository(db *sqlx.DB) *UserActivityRepository {
	return &UserActivityRepository{db: db}
}

// RecordActivity inserts one activity row.
func (r *UserActivityRepository) RecordActivity(ctx context.Context, a *models.UserActivity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO user_activities (user_id, session_id, activity_type, description, url, method,
		                             status_code, properties, ip_address, user_agent, created_at)
		VALUES (:user_id, :session_id, :activity_type, :description, :url, :method,
		        :status_code, :properties, :ip_address, :user_agent, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

// LatestActivity returns up to limit rows, newest first.
func (r *UserActivityRepository) LatestActivity(ctx context.Context, limit int) ([]models.UserActivity, error) {
	query := `
		SELECT id, user_id, session_id, activity_type, description, url, method, status_code,
		       properties, ip_address, user_agent, created_at
		FROM user_activities
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows := make([]models.UserActivity, 0)
	err := r.db.SelectContext(ctx, &rows, query, limit)
	return rows, err
}

// CountByType returns the most frequent activity types.
func (r *UserActivityRepository) CountByType(ctx context.Context, limit int) ([]models.ActivityTypeCount, error) {
	query := `
		SELECT activity_type, COUNT(*) AS total
		FROM user_activities
		GROUP BY activity_type
		ORDER BY total DESC
		LIMIT $1
	`
	counts := make([]models.ActivityTypeCount, 0)
	err := r.db.SelectContext(ctx, &counts, query, limit)
	return counts, err
}
