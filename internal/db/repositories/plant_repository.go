package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

const plantColumns = `id, uid, owner, plant_name, capacity, latitude, longitude, status,
	price_calculation_method, created_at, updated_at`

// PlantRepository handles local plant rows and user-to-plant assignments.
type PlantRepository struct {
	db *sqlx.DB
}

// NewPlantRepository creates a new PlantRepository
func NewPlantRepository(db *sqlx.DB) *PlantRepository {
	return &PlantRepository{db: db}
}

// ListPlants returns every local plant ordered by ID.
func (r *PlantRepository) ListPlants(ctx context.Context) ([]models.Plant, error) {
	plants := make([]models.Plant, 0)
	err := r.db.SelectContext(ctx, &plants, `SELECT `+plantColumns+` FROM plants ORDER BY id`)
	return plants, err
}

// ListPlantsForUser returns only the plants assigned to userID.
func (r *PlantRepository) ListPlantsForUser(ctx context.Context, userID int64) ([]models.Plant, error) {
	query := `
		SELECT p.id, p.uid, p.owner, p.plant_name, p.capacity, p.latitude, p.longitude, p.status,
		       p.price_calculation_method, p.created_at, p.updated_at
		FROM plants p
		JOIN user_plant_assignments a ON a.plant_uid = p.uid
		WHERE a.user_id = $1
		ORDER BY p.id
	`
	plants := make([]models.Plant, 0)
	err := r.db.SelectContext(ctx, &plants, query, userID)
	return plants, err
}

// GetPlantByUID returns the plant or nil when it does not exist locally.
func (r *PlantRepository) GetPlantByUID(ctx context.Context, uid string) (*models.Plant, error) {
	var plant models.Plant
	err := r.db.GetContext(ctx, &plant, `SELECT `+plantColumns+` FROM plants WHERE uid = $1`, uid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plant, nil
}

// ListAssignedUIDs returns the plant UIDs assigned to userID.
func (r *PlantRepository) ListAssignedUIDs(ctx context.Context, userID int64) ([]string, error) {
	uids := make([]string, 0)
	err := r.db.SelectContext(ctx, &uids,
		`SELECT plant_uid FROM user_plant_assignments WHERE user_id = $1 ORDER BY plant_uid`, userID)
	return uids, err
}

// IsAssigned reports whether userID may see plant uid.
func (r *PlantRepository) IsAssigned(ctx context.Context, userID int64, uid string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM user_plant_assignments WHERE user_id = $1 AND plant_uid = $2)`,
		userID, uid)
	return exists, err
}

// AssignPlant links a plant to a user. Existing assignments are left alone.
func (r *PlantRepository) AssignPlant(ctx context.Context, userID int64, uid string) error {
	query := `
		INSERT INTO user_plant_assignments (user_id, plant_uid, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, plant_uid) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, userID, uid, time.Now())
	return err
}

// UnassignPlant removes a user-to-plant link.
func (r *PlantRepository) UnassignPlant(ctx context.Context, userID int64, uid string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_plant_assignments WHERE user_id = $1 AND plant_uid = $2`, userID, uid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
