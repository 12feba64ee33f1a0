// assignments.go implements handlers for linking customer accounts to the plants they may see.
package admin

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/repositories"
)

// AssignmentHandlers handles user-to-plant assignment endpoints
type AssignmentHandlers struct {
	userRepo  *repositories.UserRepository
	plantRepo *repositories.PlantRepository
}

// NewAssignmentHandlers creates a new AssignmentHandlers instance
func NewAssignmentHandlers(db *sql.DB, database *sqlx.DB) *AssignmentHandlers {
	return &AssignmentHandlers{
		userRepo:  repositories.NewUserRepository(db),
		plantRepo: repositories.NewPlantRepository(database),
	}
}

// AssignPlantRequest names the plant to link.
type AssignPlantRequest struct {
	PlantUID string `json:"plant_uid" binding:"required,max=255"`
}

// @Summary      List plant assignments
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user_id, plant_uids"
// @Failure      403  {object}  map[string]interface{}  "Admin or staff role required"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{id}/plants [get]
// ListAssignmentsHandler returns the plant UIDs assigned to a user
// GET /api/v1/admin/users/:id/plants
func (h *AssignmentHandlers) ListAssignmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.existingUser(c)
		if !ok {
			return
		}
		uids, err := h.plantRepo.ListAssignedUIDs(c.Request.Context(), id)
		if err != nil {
			httputil.ServerError(c, "admin.list_assignments", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id, "plant_uids": uids})
	}
}

// @Summary      Assign plant
// @Tags         Admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                true  "User ID"
// @Param        body  body  AssignPlantRequest  true  "Plant to assign"
// @Success      201  {object}  map[string]interface{}  "message, user_id, plant_uid"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      422  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/v1/admin/users/{id}/plants [post]
// AssignPlantHandler links a plant to a user. Repeating an assignment is a
// no-op.
// POST /api/v1/admin/users/:id/plants
func (h *AssignmentHandlers) AssignPlantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.existingUser(c)
		if !ok {
			return
		}
		var req AssignPlantRequest
		if !httputil.BindJSON(c, &req) {
			return
		}
		uid := strings.TrimSpace(req.PlantUID)
		if err := h.plantRepo.AssignPlant(c.Request.Context(), id, uid); err != nil {
			httputil.ServerError(c, "admin.assign_plant", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":   "Plant assigned.",
			"user_id":   id,
			"plant_uid": uid,
		})
	}
}

// @Summary      Unassign plant
// @Tags         Admin
// @Security     Bearer
// @Param        id   path  int     true  "User ID"
// @Param        uid  path  string  true  "Plant UID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "Assignment not found"
// @Router       /api/v1/admin/users/{id}/plants/{uid} [delete]
// UnassignPlantHandler removes a link
// DELETE /api/v1/admin/users/:id/plants/:uid
func (h *AssignmentHandlers) UnassignPlantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}
		removed, err := h.plantRepo.UnassignPlant(c.Request.Context(), id, c.Param("uid"))
		if err != nil {
			httputil.ServerError(c, "admin.unassign_plant", err)
			return
		}
		if !removed {
			httputil.Message(c, http.StatusNotFound, "Assignment not found.")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *AssignmentHandlers) existingUser(c *gin.Context) (int64, bool) {
	id, ok := userIDParam(c)
	if !ok {
		return 0, false
	}
	user, err := h.userRepo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		httputil.ServerError(c, "admin.get_user", err)
		return 0, false
	}
	if user == nil {
		httputil.Message(c, http.StatusNotFound, "User not found.")
		return 0, false
	}
	return id, true
}
