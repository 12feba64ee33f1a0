// Package plants exposes the merged local and remote plant views. Remote
// failures never fail a request; they surface as an error marker inside the
// "external" field.
package plants

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/httputil"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/middleware"
	aggregate "github.com/mindazub/ems-laravel-next-docker-009/internal/plants"
)

// PlantHandlers serves the /plants endpoints.
type PlantHandlers struct {
	aggregator *aggregate.Aggregator
}

// NewPlantHandlers creates a new PlantHandlers instance
func NewPlantHandlers(aggregator *aggregate.Aggregator) *PlantHandlers {
	return &PlantHandlers{aggregator: aggregator}
}

// @Summary      List plants
// @Description  Local plants merged with the remote V2 listing. Customers only see plants assigned to them. A failing remote yields external: {"error": "..."} with status 200.
// @Tags         Plants
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "local: []Plant, external: any"
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/plants/list [get]
// ListHandler returns the merged plant listing
// GET /api/v1/plants/list
func (h *PlantHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.aggregator.List(c.Request.Context(), middleware.CurrentUser(c))
		if err != nil {
			httputil.ServerError(c, "plants.list", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Show plant
// @Description  Merged view of one plant. local is null when the plant only exists remotely.
// @Tags         Plants
// @Security     Bearer
// @Produce      json
// @Param        uid  path  string  true  "Plant UID"
// @Success      200  {object}  map[string]interface{}  "local, external, display_name"
// @Failure      403  {object}  map[string]interface{}  "Plant not assigned to caller"
// @Router       /api/v1/plants/{uid}/show [get]
// DetailHandler returns the merged view of one plant. It serves both /show
// and /view.
// GET /api/v1/plants/:uid/show
func (h *PlantHandlers) DetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := h.authorize(c)
		if !ok {
			return
		}
		result, err := h.aggregator.Detail(c.Request.Context(), uid)
		if err != nil {
			httputil.ServerError(c, "plants.detail", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Plant events
// @Description  Latest local events merged with the remote event feed. A failing remote yields external: {"error": "..."}.
// @Tags         Plants
// @Security     Bearer
// @Produce      json
// @Param        uid  path  string  true  "Plant UID"
// @Success      200  {object}  aggregate.EventsResult
// @Failure      403  {object}  map[string]interface{}  "Plant not assigned to caller"
// @Router       /api/v1/plants/{uid}/events [get]
// EventsHandler returns local events and the remote event feed
// GET /api/v1/plants/:uid/events
func (h *PlantHandlers) EventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := h.authorize(c)
		if !ok {
			return
		}
		result, err := h.aggregator.Events(c.Request.Context(), uid)
		if err != nil {
			httputil.ServerError(c, "plants.events", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Reaggregated measurements
// @Tags         Plants
// @Security     Bearer
// @Produce      json
// @Param        uid    path   string  true   "Plant UID"
// @Param        range  query  string  false  "Aggregation range, default day"
// @Param        date   query  string  false  "Reference date, YYYY-MM-DD"
// @Success      200  {object}  aggregate.ReaggregatedResult
// @Failure      403  {object}  map[string]interface{}  "Plant not assigned to caller"
// @Router       /api/v1/plants/{uid}/reaggregated-data [get]
// ReaggregatedHandler returns remote measurements for a range and date
// GET /api/v1/plants/:uid/reaggregated-data?range=day&date=2024-01-31
func (h *PlantHandlers) ReaggregatedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := h.authorize(c)
		if !ok {
			return
		}
		result := h.aggregator.Reaggregated(c.Request.Context(), uid,
			c.DefaultQuery("range", "day"), c.Query("date"))
		c.JSON(http.StatusOK, result)
	}
}

// authorize checks that the caller may see the plant in the path.
func (h *PlantHandlers) authorize(c *gin.Context) (string, bool) {
	uid := c.Param("uid")
	allowed, err := h.aggregator.CanView(c.Request.Context(), middleware.CurrentUser(c), uid)
	if err != nil {
		httputil.ServerError(c, "plants.authorize", err)
		return "", false
	}
	if !allowed {
		httputil.Message(c, http.StatusForbidden, "Forbidden.")
		return "", false
	}
	return uid, true
}
