package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// PlantEventRepository reads locally stored plant events.
type PlantEventRepository struct {
	db *sqlx.DB
}

// NewPlantEventRepository creates a new PlantEventRepository
func NewPlantEventRepository(db *sqlx.DB) *PlantEventRepository {
	return &PlantEventRepository{db: db}
}

// LatestEvents returns up to limit events for a plant, newest first.
func (r *PlantEventRepository) LatestEvents(ctx context.Context, plantUID string, limit int) ([]models.PlantEvent, error) {
	query := `
		SELECT id, plant_uid, device_uid, event_type, event_category, title, description,
		       severity, status, metadata, event_timestamp, resolved_at, resolved_by
		FROM plant_events
		WHERE plant_uid = $1
		ORDER BY event_timestamp DESC
		LIMIT $2
	`
	events := make([]models.PlantEvent, 0)
	err := r.db.SelectContext(ctx, &events, query, plantUID, limit)
	return events, err
}
