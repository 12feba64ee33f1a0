package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

const mappingColumns = `id, plant_uuid, display_name, description, is_active, created_at, updated_at`

// PlantNameMappingRepository handles display-name overrides for plants.
type PlantNameMappingRepository struct {
	db *sqlx.DB
}

// NewPlantNameMappingRepository creates a new PlantNameMappingRepository
func NewPlantNameMappingRepository(db *sqlx.DB) *PlantNameMappingRepository {
	return &PlantNameMappingRepository{db: db}
}

// ListMappings returns every mapping, active or not, ordered by display name.
func (r *PlantNameMappingRepository) ListMappings(ctx context.Context) ([]models.PlantNameMapping, error) {
	mappings := make([]models.PlantNameMapping, 0)
	err := r.db.SelectContext(ctx, &mappings,
		`SELECT `+mappingColumns+` FROM plant_name_mappings ORDER BY display_name`)
	return mappings, err
}

// ActiveDisplayNames returns uid -> display name for the active mappings of
// the given UIDs. Empty display names are skipped.
func (r *PlantNameMappingRepository) ActiveDisplayNames(ctx context.Context, uids []string) (map[string]string, error) {
	names := make(map[string]string, len(uids))
	if len(uids) == 0 {
		return names, nil
	}

	rows := make([]models.PlantNameMapping, 0, len(uids))
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+mappingColumns+` FROM plant_name_mappings
		 WHERE is_active = TRUE AND plant_uuid = ANY($1)`, pq.Array(uids))
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if m.DisplayName != "" {
			names[m.PlantUUID] = m.DisplayName
		}
	}
	return names, nil
}

// GetMapping returns the mapping for uid regardless of its active flag.
func (r *PlantNameMappingRepository) GetMapping(ctx context.Context, uid string) (*models.PlantNameMapping, error) {
	var m models.PlantNameMapping
	err := r.db.GetContext(ctx, &m,
		`SELECT `+mappingColumns+` FROM plant_name_mappings WHERE plant_uuid = $1`, uid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertMapping creates or replaces the mapping keyed by PlantUUID.
func (r *PlantNameMappingRepository) UpsertMapping(ctx context.Context, m *models.PlantNameMapping) error {
	now := time.Now()
	query := `
		INSERT INTO plant_name_mappings (plant_uuid, display_name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (plant_uuid) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    description = COALESCE(EXCLUDED.description, plant_name_mappings.description),
		    is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		m.PlantUUID, m.DisplayName, m.Description, m.IsActive, now,
	).Scan(&m.ID, &m.CreatedAt); err != nil {
		return err
	}
	m.UpdatedAt = now
	return nil
}

// CountMappings returns the number of stored mappings.
func (r *PlantNameMappingRepository) CountMappings(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM plant_name_mappings`)
	return n, err
}
