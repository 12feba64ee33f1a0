// plant_name_mappings.go implements handlers for listing, seeding, and editing plant display-name overrides.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/repositories"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/seed"
)

// MappingHandlers handles plant name mapping endpoints
type MappingHandlers struct {
	mappingRepo *repositories.PlantNameMappingRepository
}

// NewMappingHandlers creates a new MappingHandlers instance
func NewMappingHandlers(db *sqlx.DB) *MappingHandlers {
	return &MappingHandlers{
		mappingRepo: repositories.NewPlantNameMappingRepository(db),
	}
}

// UpsertMappingRequest creates or edits one mapping. On an existing mapping
// omitted fields keep their stored values.
type UpsertMappingRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// @Summary      List plant name mappings
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.PlantNameMapping
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Router       /api/v1/admin/plant-name-mappings [get]
// ListMappingsHandler returns every mapping ordered by display name
// GET /api/v1/admin/plant-name-mappings
func (h *MappingHandlers) ListMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		mappings, err := h.mappingRepo.ListMappings(c.Request.Context())
		if err != nil {
			httputil.ServerError(c, "admin.list_mappings", err)
			return
		}
		c.JSON(http.StatusOK, mappings)
	}
}

// @Summary      Seed plant name mappings
// @Description  Upserts the built-in mapping set. Mappings outside the set are left alone.
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, total"
// @Router       /api/v1/admin/plant-name-mappings/seed [post]
// SeedMappingsHandler upserts the built-in mapping set
// POST /api/v1/admin/plant-name-mappings/seed
func (h *MappingHandlers) SeedMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		total, err := seed.PlantNameMappings(c.Request.Context(), h.mappingRepo)
		if err != nil {
			httputil.ServerError(c, "admin.seed_mappings", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Plant name mappings seeded successfully.",
			"total":   total,
		})
	}
}

// @Summary      Upsert plant name mapping
// @Description  Creates or edits the display-name override for one plant. Use is_active to toggle it without losing the name.
// @Tags         Admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        uid   path  string                true  "Plant UUID"
// @Param        body  body  UpsertMappingRequest  true  "Mapping fields"
// @Success      200  {object}  models.PlantNameMapping
// @Failure      422  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/v1/admin/plant-name-mappings/{uid} [put]
// UpsertMappingHandler creates or edits one mapping
// PUT /api/v1/admin/plant-name-mappings/:uid
func (h *MappingHandlers) UpsertMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		parsed, err := uuid.Parse(c.Param("uid"))
		if err != nil {
			httputil.Message(c, http.StatusUnprocessableEntity, "The plant uuid must be a valid UUID.")
			return
		}
		uid := parsed.String()

		var req UpsertMappingRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		existing, err := h.mappingRepo.GetMapping(c.Request.Context(), uid)
		if err != nil {
			httputil.ServerError(c, "admin.get_mapping", err)
			return
		}

		mapping := &models.PlantNameMapping{PlantUUID: uid, IsActive: true}
		if existing != nil {
			mapping.DisplayName = existing.DisplayName
			mapping.IsActive = existing.IsActive
		}
		if req.DisplayName != nil {
			mapping.DisplayName = strings.TrimSpace(*req.DisplayName)
		}
		if req.IsActive != nil {
			mapping.IsActive = *req.IsActive
		}
		mapping.Description = req.Description
		if mapping.DisplayName == "" {
			httputil.Message(c, http.StatusUnprocessableEntity, "The display_name field is required.")
			return
		}

		if err := h.mappingRepo.UpsertMapping(c.Request.Context(), mapping); err != nil {
			httputil.ServerError(c, "admin.upsert_mapping", err)
			return
		}
		if mapping.Description == nil && existing != nil {
			mapping.Description = existing.Description
		}
		c.JSON(http.StatusOK, mapping)
	}
}
