// stats.go implements handlers for the recorded user activity feed and the dashboard analytics aggregates.
package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/repositories"
)

const (
	// ActivityFeedLimit caps the activity feed.
	ActivityFeedLimit = 250
	// ActivityTypeLimit caps the activity-by-type aggregate.
	ActivityTypeLimit = 20
)

// StatsHandler handles the activity and analytics endpoints
type StatsHandler struct {
	userRepo     *repositories.UserRepository
	activityRepo *repositories.UserActivityRepository
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(db *sql.DB, database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		userRepo:     repositories.NewUserRepository(db),
		activityRepo: repositories.NewUserActivityRepository(database),
	}
}

// Analytics is the response of the analytics endpoint.
type Analytics struct {
	UsersByRole    []models.RoleCount         `json:"users_by_role"`
	ActivityByType []models.ActivityTypeCount `json:"activity_by_type"`
}

// @Summary      Activity feed
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.UserActivity
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Router       /api/v1/admin/activity [get]
// ActivityHandler returns the newest recorded activity
// GET /api/v1/admin/activity
func (h *StatsHandler) ActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activity, err := h.activityRepo.LatestActivity(c.Request.Context(), ActivityFeedLimit)
		if err != nil {
			httputil.ServerError(c, "admin.activity", err)
			return
		}
		c.JSON(http.StatusOK, activity)
	}
}

// @Summary      Analytics
// @Description  Users per role and the most frequent activity types.
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  Analytics
// @Router       /api/v1/admin/analytics [get]
// AnalyticsHandler returns the dashboard aggregates
// GET /api/v1/admin/analytics
func (h *StatsHandler) AnalyticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		byRole, err := h.userRepo.CountByRole(ctx)
		if err != nil {
			httputil.ServerError(c, "admin.analytics.roles", err)
			return
		}
		byType, err := h.activityRepo.CountByType(ctx, ActivityTypeLimit)
		if err != nil {
			httputil.ServerError(c, "admin.analytics.activity", err)
			return
		}

		c.JSON(http.StatusOK, Analytics{UsersByRole: byRole, ActivityByType: byType})
	}
}
