// requests.go implements the plant onboarding workflow: any signed-in user
// may submit a plant, and admin or staff approve or reject it.
package plants

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/repositories"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/middleware"
)

// RequestHandlers serves the /user-plants endpoints.
type RequestHandlers struct {
	repo *repositories.UserPlantRepository
}

// NewRequestHandlers creates a new RequestHandlers instance
func NewRequestHandlers(db *sqlx.DB) *RequestHandlers {
	return &RequestHandlers{repo: repositories.NewUserPlantRepository(db)}
}

// CreateRequest is the onboarding submission payload.
type CreateRequest struct {
	UID         string   `json:"uid" binding:"required,max=64"`
	Name        string   `json:"name" binding:"required,max=255"`
	Description *string  `json:"description"`
	Type        string   `json:"type" binding:"required,max=64"`
	Capacity    *float64 `json:"capacity" binding:"required"`
	OwnerName   string   `json:"owner_name" binding:"required,max=255"`
	OwnerEmail  string   `json:"owner_email" binding:"required,email,max=255"`
	OwnerPhone  string   `json:"owner_phone" binding:"required,max=64"`
	Address     string   `json:"address" binding:"required,max=255"`
	City        string   `json:"city" binding:"required,max=128"`
	State       string   `json:"state" binding:"required,max=128"`
	PostalCode  string   `json:"postal_code" binding:"required,max=32"`
	Country     string   `json:"country" binding:"required,max=128"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// RejectRequest optionally explains a rejection.
type RejectRequest struct {
	RejectionReason *string `json:"rejection_reason"`
}

// @Summary      List onboarding requests
// @Description  Submitted plants, newest first. approval_status narrows the list to pending, approved or rejected requests.
// @Tags         Plants
// @Security     Bearer
// @Produce      json
// @Param        approval_status  query  string  false  "pending, approved or rejected"
// @Success      200  {array}   models.UserPlant
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/user-plants [get]
// ListRequestsHandler lists onboarding requests
// GET /api/v1/user-plants
func (h *RequestHandlers) ListRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plants, err := h.repo.ListUserPlants(c.Request.Context(), strings.TrimSpace(c.Query("approval_status")))
		if err != nil {
			httputil.ServerError(c, "user_plants.list", err)
			return
		}
		c.JSON(http.StatusOK, plants)
	}
}

// @Summary      Submit plant
// @Description  Creates a pending onboarding request owned by the caller.
// @Tags         Plants
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRequest  true  "Plant details"
// @Success      201  {object}  models.UserPlant
// @Failure      422  {object}  map[string]interface{}  "Validation failed or uid taken"
// @Router       /api/v1/user-plants [post]
// CreateRequestHandler stores a new onboarding request
// POST /api/v1/user-plants
func (h *RequestHandlers) CreateRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if !httputil.BindJSON(c, &req) {
			return
		}

		plant := &models.UserPlant{
			UID:         strings.TrimSpace(req.UID),
			Name:        req.Name,
			Description: req.Description,
			Type:        req.Type,
			Capacity:    *req.Capacity,
			OwnerName:   req.OwnerName,
			OwnerEmail:  req.OwnerEmail,
			OwnerPhone:  req.OwnerPhone,
			Address:     req.Address,
			City:        req.City,
			State:       req.State,
			PostalCode:  req.PostalCode,
			Country:     req.Country,
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
		}
		if user := middleware.CurrentUser(c); user != nil {
			plant.CreatedBy = &user.ID
		}

		err := h.repo.CreateUserPlant(c.Request.Context(), plant)
		if errors.Is(err, repositories.ErrUserPlantUIDTaken) {
			httputil.Message(c, http.StatusUnprocessableEntity, "The uid has already been taken.")
			return
		}
		if err != nil {
			httputil.ServerError(c, "user_plants.create", err)
			return
		}
		c.JSON(http.StatusCreated, plant)
	}
}

// @Summary      Approve plant
// @Tags         Plants
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Request ID"
// @Success      200  {object}  models.UserPlant
// @Failure      403  {object}  map[string]interface{}  "Admin or staff role required"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Router       /api/v1/user-plants/{id}/approve [post]
// ApproveHandler approves an onboarding request
// POST /api/v1/user-plants/:id/approve
func (h *RequestHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requestIDParam(c)
		if !ok {
			return
		}
		plant, err := h.repo.Approve(c.Request.Context(), id, middleware.CurrentUser(c).ID)
		h.respond(c, "user_plants.approve", plant, err)
	}
}

// @Summary      Reject plant
// @Tags         Plants
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int            true   "Request ID"
// @Param        body  body  RejectRequest  false  "Reason"
// @Success      200  {object}  models.UserPlant
// @Failure      403  {object}  map[string]interface{}  "Admin or staff role required"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Router       /api/v1/user-plants/{id}/reject [post]
// RejectHandler rejects an onboarding request
// POST /api/v1/user-plants/:id/reject
func (h *RequestHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requestIDParam(c)
		if !ok {
			return
		}
		var req RejectRequest
		if c.Request.ContentLength != 0 && !httputil.BindJSON(c, &req) {
			return
		}
		if req.RejectionReason != nil && strings.TrimSpace(*req.RejectionReason) == "" {
			req.RejectionReason = nil
		}
		plant, err := h.repo.Reject(c.Request.Context(), id, middleware.CurrentUser(c).ID, req.RejectionReason)
		h.respond(c, "user_plants.reject", plant, err)
	}
}

func (h *RequestHandlers) respond(c *gin.Context, op string, plant *models.UserPlant, err error) {
	if err != nil {
		httputil.ServerError(c, op, err)
		return
	}
	if plant == nil {
		httputil.Message(c, http.StatusNotFound, "Plant request not found.")
		return
	}
	c.JSON(http.StatusOK, plant)
}

func requestIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Message(c, http.StatusNotFound, "Plant request not found.")
		return 0, false
	}
	return id, true
}
