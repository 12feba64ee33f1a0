// users.go implements handlers for listing user accounts and applying administrator updates to them.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/repositories"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(db *sql.DB) *UserHandlers {
	return &UserHandlers{
		userRepo: repositories.NewUserRepository(db),
	}
}

// UpdateUserRequest is the administrator update payload. Absent fields are
// left untouched; customer_id null is treated as absent.
type UpdateUserRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=255"`
	Email       *string `json:"email" binding:"omitempty,email,max=255"`
	Role        *string `json:"role" binding:"omitempty,oneof=admin staff manager installer customer"`
	Status      *string `json:"status" binding:"omitempty,max=50"`
	IsSuspended *bool   `json:"is_suspended"`
	CustomerID  *int64  `json:"customer_id" binding:"omitempty,min=1"`
}

func (r UpdateUserRequest) toUpdate() models.UserUpdate {
	upd := models.UserUpdate{
		Name:        r.Name,
		Status:      r.Status,
		IsSuspended: r.IsSuspended,
		CustomerID:  r.CustomerID,
	}
	if r.Email != nil {
		email := strings.TrimSpace(*r.Email)
		upd.Email = &email
	}
	if r.Role != nil {
		role := models.Role(*r.Role)
		upd.Role = &role
	}
	return upd
}

// @Summary      List users
// @Description  Every account ordered by ID. Requires the admin role.
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.User
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/users [get]
// ListUsersHandler lists all users
// GET /api/v1/admin/users
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.userRepo.ListUsers(c.Request.Context())
		if err != nil {
			httputil.ServerError(c, "admin.list_users", err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// @Summary      Update user
// @Description  Applies the supplied fields only: name, email, role, status, is_suspended, customer_id.
// @Tags         Admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "Fields to change"
// @Success      200  {object}  map[string]interface{}  "message, user"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      422  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/v1/admin/users/{id} [put]
// UpdateUserHandler applies an administrator update to one user
// PUT /api/v1/admin/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}

		var req UpdateUserRequest
		if !httputil.BindJSON(c, &req) {
			return
		}
		upd := req.toUpdate()

		existing, err := h.userRepo.GetUserByID(c.Request.Context(), id)
		if err != nil {
			httputil.ServerError(c, "admin.get_user", err)
			return
		}
		if existing == nil {
			httputil.Message(c, http.StatusNotFound, "User not found.")
			return
		}

		if upd.Empty() {
			c.JSON(http.StatusOK, gin.H{"message": "User updated successfully.", "user": existing})
			return
		}

		if upd.Email != nil && !strings.EqualFold(*upd.Email, existing.Email) {
			other, err := h.userRepo.GetUserByEmail(c.Request.Context(), *upd.Email)
			if err != nil {
				httputil.ServerError(c, "admin.check_email", err)
				return
			}
			if other != nil && other.ID != id {
				httputil.Message(c, http.StatusUnprocessableEntity, "The email has already been taken.")
				return
			}
		}

		user, err := h.userRepo.UpdateUser(c.Request.Context(), id, upd)
		if err != nil {
			httputil.ServerError(c, "admin.update_user", err)
			return
		}
		if user == nil {
			httputil.Message(c, http.StatusNotFound, "User not found.")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated successfully.", "user": user})
	}
}

// userIDParam parses the :id path segment, answering 404 for anything that
// is not a positive integer.
func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Message(c, http.StatusNotFound, "User not found.")
		return 0, false
	}
	return id, true
}
