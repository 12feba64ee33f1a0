package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// ErrUserPlantUIDTaken is returned when an onboarding request reuses a UID.
var ErrUserPlantUIDTaken = errors.New("user plant uid already exists")

const userPlantColumns = `id, uid, name, description, type, capacity, owner_name, owner_email, owner_phone,
	address, city, state, postal_code, country, latitude, longitude, approval_status, approved_at,
	approved_by, rejection_reason, created_by, created_at, updated_at`

// UserPlantRepository stores plant onboarding requests.
type UserPlantRepository struct {
	db *sqlx.DB
}

// NewUserPlantRepository creates a new UserPlantRepository
func NewUserPlantRepository(db *sqlx.DB) *UserPlantRepository {
	return &UserPlantRepository{db: db}
}

// ListUserPlants returns requests newest first. An empty status lists all.
func (r *UserPlantRepository) ListUserPlants(ctx context.Context, status string) ([]models.UserPlant, error) {
	plants := make([]models.UserPlant, 0)
	query := `SELECT ` + userPlantColumns + ` FROM user_plants`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE approval_status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &plants, query, args...)
	return plants, err
}

// CreateUserPlant inserts p as a pending request and fills in the generated
// fields.
func (r *UserPlantRepository) CreateUserPlant(ctx context.Context, p *models.UserPlant) error {
	now := time.Now()
	query := `
		INSERT INTO user_plants (uid, name, description, type, capacity, owner_name, owner_email, owner_phone,
			address, city, state, postal_code, country, latitude, longitude, approval_status, created_by,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.UID, p.Name, p.Description, p.Type, p.Capacity, p.OwnerName, p.OwnerEmail, p.OwnerPhone,
		p.Address, p.City, p.State, p.PostalCode, p.Country, p.Latitude, p.Longitude,
		models.ApprovalPending, p.CreatedBy, now,
	).Scan(&p.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrUserPlantUIDTaken
	}
	if err != nil {
		return err
	}
	p.ApprovalStatus = models.ApprovalPending
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Approve marks the request approved by approverID and clears any earlier
// rejection reason. It returns nil when no request has that id.
func (r *UserPlantRepository) Approve(ctx context.Context, id, approverID int64) (*models.UserPlant, error) {
	now := time.Now()
	return r.setApproval(ctx, id, models.ApprovalApproved, &now, approverID, nil)
}

// Reject marks the request rejected by approverID with an optional reason.
// It returns nil when no request has that id.
func (r *UserPlantRepository) Reject(ctx context.Context, id, approverID int64, reason *string) (*models.UserPlant, error) {
	return r.setApproval(ctx, id, models.ApprovalRejected, nil, approverID, reason)
}

func (r *UserPlantRepository) setApproval(ctx context.Context, id int64, status string, approvedAt *time.Time, approverID int64, reason *string) (*models.UserPlant, error) {
	var p models.UserPlant
	err := r.db.GetContext(ctx, &p, `
		UPDATE user_plants
		SET approval_status = $2, approved_at = $3, approved_by = $4, rejection_reason = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userPlantColumns,
		id, status, approvedAt, approverID, reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
