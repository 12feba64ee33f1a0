package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/telemetry"
)

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "<no-route>"

// MetricsMiddleware observes telemetry.HTTPRequestsTotal and
// telemetry.HTTPRequestDuration for every request.
//
// The path label is the Gin route template (/api/v1/plants/:uid/view), never
// the raw URL, so plant UIDs do not become label values. Register it after
// gin.Recovery so recovered panics are counted as 500s.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
