// activity.go records API actions into user_activities after the handler has
// answered. Writes happen off the request path.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/safego"
)

// ActivityWriter persists one activity row.
type ActivityWriter interface {
	RecordActivity(ctx context.Context, a *models.UserActivity) error
}

// ActivityOptions controls what ActivityMiddleware records.
type ActivityOptions struct {
	// LogReadOperations also records GET requests.
	LogReadOperations bool
	// Timeout bounds each detached write. Defaults to 5s.
	Timeout time.Duration
}

const apiPrefix = "/api/v1/"

// ActivityMiddleware records requests made by resolved callers. By default only
// successful writes are kept; reads are added with opts.LogReadOperations.
// Anonymous traffic and failed requests are never recorded.
func ActivityMiddleware(writer ActivityWriter, opts ActivityOptions) gin.HandlerFunc {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	return func(c *gin.Context) {
		c.Next()

		method := c.Request.Method
		if method == http.MethodOptions || method == http.MethodHead {
			return
		}
		if method == http.MethodGet && !opts.LogReadOperations {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			return
		}
		user := CurrentUser(c)
		if user == nil {
			return
		}

		entry := buildActivity(c, user, status)
		safego.Go("activity.record", func() {
			ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
			defer cancel()
			if err := writer.RecordActivity(ctx, entry); err != nil {
				slog.Warn("activity: failed to record", "activity_type", entry.ActivityType, "user_id", user.ID, "error", err)
			}
		})
	}
}

func buildActivity(c *gin.Context, user *models.User, status int) *models.UserActivity {
	userID := user.ID
	method := c.Request.Method
	url := c.Request.URL.Path
	ip := c.ClientIP()
	ua := c.Request.UserAgent()
	activityType := ActivityType(method, c.FullPath())
	description := method + " " + url

	entry := &models.UserActivity{
		UserID:       &userID,
		ActivityType: activityType,
		Description:  &description,
		URL:          &url,
		Method:       &method,
		StatusCode:   &status,
		IPAddress:    &ip,
		CreatedAt:    time.Now(),
	}
	if ua != "" {
		entry.UserAgent = &ua
	}

	props := map[string]interface{}{}
	if v, ok := c.Get(ContextAuthMethodKey); ok {
		props["auth_method"] = v
	}
	if rid := c.GetString(RequestIDKey); rid != "" {
		props["request_id"] = rid
	}
	if v, ok := c.Get(ContextAPITokenIDKey); ok {
		if id, ok := v.(int64); ok {
			session := "token:" + strconv.FormatInt(id, 10)
			entry.SessionID = &session
		}
	}
	if len(props) > 0 {
		if raw, err := json.Marshal(props); err == nil {
			msg := json.RawMessage(raw)
			entry.Properties = &msg
		}
	}
	return entry
}

// ActivityType names an action after its route template:
//
//	POST /api/v1/auth/2fa/confirm   → auth.2fa.confirm
//	PUT  /api/v1/admin/users/:id    → admin.users.update
//	GET  /api/v1/plants/:uid/view   → plants.view
//	DELETE /api/v1/auth/2fa         → auth.2fa.delete
//
// Unmatched routes are recorded as "unknown".
func ActivityType(method, route string) string {
	route = strings.TrimPrefix(route, apiPrefix)
	var parts []string
	for _, seg := range strings.Split(route, "/") {
		if seg == "" || strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") {
			continue
		}
		parts = append(parts, strings.ToLower(seg))
	}
	if len(parts) == 0 {
		return "unknown"
	}

	switch method {
	case http.MethodPut, http.MethodPatch:
		parts = append(parts, "update")
	case http.MethodDelete:
		parts = append(parts, "delete")
	}
	name := strings.Join(parts, ".")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
