// Package middleware provides the Gin middleware chain for the EMS API:
// request ids, metrics, request logging, security headers, rate limiting,
// caller identity resolution, role gates and activity recording.
//
// Ordering is fixed in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → ResolveIdentity → RateLimit → Require* → Activity → Handler
//
// ResolveIdentity never rejects a request. It only attaches the caller when one
// can be resolved; RequireAuth and RequireRole are the gates that answer 401
// and 403.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/safego"
)

// Gin context keys set by ResolveIdentity.
const (
	ContextUserKey       = "user"
	ContextUserIDKey     = "user_id"
	ContextAuthMethodKey = "auth_method"
	ContextAPITokenIDKey = "api_token_id"
)

// Values stored under ContextAuthMethodKey.
const (
	AuthMethodAPIToken = "api_token"
	AuthMethodHeader   = "header"
)

// UserIDHeader is the low-priority caller-id fallback used by internal tooling.
const UserIDHeader = "X-User-Id"

// lastUsedTimeout bounds the detached last-used stamp.
const lastUsedTimeout = 5 * time.Second

// TokenLookup is the subset of the api_tokens repository the gate needs.
type TokenLookup interface {
	GetValidTokenByHash(ctx context.Context, tokenHash string, now time.Time) (*models.APIToken, error)
	UpdateLastUsed(ctx context.Context, tokenID int64, at time.Time) error
}

// UserLookup loads the owner of a token or header id.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
}

// IdentityOptions configures ResolveIdentity.
type IdentityOptions struct {
	// AllowUserIDHeader enables the X-User-Id fallback. Off in production.
	AllowUserIDHeader bool
	// Now is overridable in tests.
	Now func() time.Time
}

// ResolveIdentity attaches the calling user to the request when it can be
// resolved, and otherwise lets the request through anonymously.
//
// Resolution order:
//  1. An identity already attached by an earlier handler is kept.
//  2. Authorization: Bearer <token>, looked up by its sha256 digest among
//     unexpired tokens. A hit schedules a detached last-used stamp.
//  3. X-User-Id, only when opts.AllowUserIDHeader is set.
//
// Lookup errors are logged and treated as "no identity"; suspended users are
// never attached.
func ResolveIdentity(tokens TokenLookup, users UserLookup, opts IdentityOptions) gin.HandlerFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		if _, exists := c.Get(ContextUserKey); exists {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		if raw, err := auth.ExtractBearerToken(c.GetHeader("Authorization")); err == nil {
			if user, token := resolveBearer(ctx, tokens, users, raw, now()); user != nil {
				setIdentity(c, user, AuthMethodAPIToken)
				c.Set(ContextAPITokenIDKey, token.ID)
				stampLastUsed(tokens, token.ID, now())
				c.Next()
				return
			}
		}

		if opts.AllowUserIDHeader {
			if user := resolveHeader(ctx, users, c.GetHeader(UserIDHeader)); user != nil {
				setIdentity(c, user, AuthMethodHeader)
			}
		}

		c.Next()
	}
}

func resolveBearer(ctx context.Context, tokens TokenLookup, users UserLookup, raw string, now time.Time) (*models.User, *models.APIToken) {
	token, err := tokens.GetValidTokenByHash(ctx, auth.HashToken(raw), now)
	if err != nil {
		slog.Warn("identity: token lookup failed", "error", err)
		return nil, nil
	}
	// Expiry is filtered in SQL as well; re-checked for other TokenLookup implementations.
	if token == nil || token.Expired(now) {
		return nil, nil
	}

	user, err := users.GetUserByID(ctx, token.UserID)
	if err != nil {
		slog.Warn("identity: token owner lookup failed", "token_id", token.ID, "error", err)
		return nil, nil
	}
	if user == nil || user.IsSuspended {
		return nil, nil
	}
	return user, token
}

func resolveHeader(ctx context.Context, users UserLookup, value string) *models.User {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	user, err := users.GetUserByID(ctx, id)
	if err != nil {
		slog.Warn("identity: header user lookup failed", "user_id", id, "error", err)
		return nil
	}
	if user == nil || user.IsSuspended {
		return nil
	}
	return user
}

func setIdentity(c *gin.Context, user *models.User, method string) {
	c.Set(ContextUserKey, user)
	c.Set(ContextUserIDKey, user.ID)
	c.Set(ContextAuthMethodKey, method)
}

// stampLastUsed runs detached from the request so a slow write never delays
// the response; the request context may already be cancelled by then.
func stampLastUsed(tokens TokenLookup, tokenID int64, at time.Time) {
	safego.Go("identity.last_used", func() {
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()
		if err := tokens.UpdateLastUsed(ctx, tokenID, at); err != nil {
			slog.Warn("identity: failed to stamp token last_used_at", "token_id", tokenID, "error", err)
		}
	})
}

// CurrentUser returns the user attached by ResolveIdentity, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// RequireAuth rejects requests that carry no resolved identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required."})
			return
		}
		c.Next()
	}
}

// RequireRole rejects anonymous requests with 401 and callers outside roles
// with 403.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required."})
			return
		}
		if !user.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden."})
			return
		}
		c.Next()
	}
}
