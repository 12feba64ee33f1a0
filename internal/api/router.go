// Package api wires together all HTTP routes for the EMS backend.
//
// Route grouping:
//   - /health, /ready and /version are public probes outside /api/v1.
//   - /api/v1/auth login, registration, password reset, email verification and
//     the two-factor challenge are public and share the stricter auth rate
//     limiter.
//   - Every other /api/v1 route requires a resolved caller. /admin adds a role
//     gate: admin for account and mapping management, admin or staff for
//     customer plant assignments. Reviewing /user-plants onboarding requests
//     also needs admin or staff.
//
// Caller identity is resolved once for the whole /api/v1 group. Handlers read
// it with middleware.CurrentUser.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/accounts"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/api/admin"
	plantsapi "github.com/mindazub/ems-laravel-next-docker-009/internal/api/plants"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/auth"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/challenge"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/config"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/crypto"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/repositories"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/jobs"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/middleware"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/plantapi"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/plants"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/services"
)

// Version is reported by /version. Overridden at build time with
// -ldflags "-X github.com/mindazub/ems-laravel-next-docker-009/internal/api.Version=...".
var Version = "dev"

// redisKeyPrefix namespaces every key this service writes to Redis.
const redisKeyPrefix = "ems:"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	tokenCleanup   *jobs.TokenCleanupJob
	challengeStore *challenge.MemoryStore
	rateLimiters   []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.tokenCleanup != nil {
		bg.tokenCleanup.Stop()
	}
	if bg.challengeStore != nil {
		bg.challengeStore.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb may be nil, in which
// case challenges and rate limits are kept in process memory.
func NewRouter(cfg *config.Config, db *sql.DB, rdb redis.UniversalClient) (*gin.Engine, *BackgroundServices, error) {
	cipher, err := crypto.FromConfigKey(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize two-factor cipher: %w", err)
	}

	router := gin.New()
	bg := &BackgroundServices{}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	tokenRepo := repositories.NewAPITokenRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	sqlxDB := sqlx.NewDb(db, "postgres")
	plantRepo := repositories.NewPlantRepository(sqlxDB)
	mappingRepo := repositories.NewPlantNameMappingRepository(sqlxDB)
	eventRepo := repositories.NewPlantEventRepository(sqlxDB)
	activityRepo := repositories.NewUserActivityRepository(sqlxDB)

	// Challenge store: Redis when configured so any instance can answer a
	// challenge issued by another.
	var store challenge.Store
	if rdb != nil {
		store = challenge.NewRedisStore(rdb, redisKeyPrefix)
		slog.Info("challenge store: redis")
	} else {
		memStore := challenge.NewMemoryStore(time.Minute)
		bg.challengeStore = memStore
		store = memStore
		slog.Info("challenge store: in-memory")
	}

	// Services
	authService := services.NewAuthService(userRepo, tokenRepo, resetRepo, store, services.AuthServiceConfig{
		TokenTTL:        cfg.Auth.TokenTTL,
		ChallengeTTL:    cfg.Auth.ChallengeTTL,
		VerificationTTL: cfg.Auth.VerificationTTL,
		BcryptCost:      cfg.Auth.BcryptCost,
	})
	twoFactorService := services.NewTwoFactorService(userRepo, authService, store,
		auth.NewPquernaTOTP(cfg.Auth.AppName), cipher)

	remote := plantapi.NewClient(cfg.Plants.V2)
	if !remote.Configured() {
		slog.Warn("remote plant API is not configured; plant responses will carry an error marker",
			"kind", "configuration")
	}
	aggregator := plants.NewAggregator(plantRepo, mappingRepo, eventRepo, remote,
		plants.PathsFromConfig(cfg.Plants.V2))

	// Handlers
	authHandlers := accounts.NewAuthHandlers(authService, twoFactorService)
	plantHandlers := plantsapi.NewPlantHandlers(aggregator)
	requestHandlers := plantsapi.NewRequestHandlers(sqlxDB)
	userHandlers := admin.NewUserHandlers(db)
	statsHandler := admin.NewStatsHandler(db, sqlxDB)
	mappingHandlers := admin.NewMappingHandlers(sqlxDB)
	assignmentHandlers := admin.NewAssignmentHandlers(db, sqlxDB)

	// Rate limiters
	var authLimit, generalLimit []gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		authCfg := middleware.AuthRateLimitConfig().WithOverrides(cfg.Security.RateLimiting.AuthRequestsPerMinute, 0)
		generalCfg := middleware.DefaultRateLimitConfig().WithOverrides(
			cfg.Security.RateLimiting.RequestsPerMinute, cfg.Security.RateLimiting.Burst)
		authLimit = []gin.HandlerFunc{middleware.RateLimitMiddleware(bg.newLimiter(rdb, "ratelimit:auth", authCfg))}
		generalLimit = []gin.HandlerFunc{middleware.RateLimitMiddleware(bg.newLimiter(rdb, "ratelimit:api", generalCfg))}
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, rdb))
	router.GET("/version", versionHandler())

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ResolveIdentity(tokenRepo, userRepo, middleware.IdentityOptions{
		AllowUserIDHeader: cfg.Auth.AllowUserIDHeader,
	}))
	v1.Use(generalLimit...)
	if cfg.Activity.Enabled {
		v1.Use(middleware.ActivityMiddleware(activityRepo, middleware.ActivityOptions{
			LogReadOperations: cfg.Activity.LogReadOperations,
		}))
	}

	// Public auth routes
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", append(authLimit, authHandlers.LoginHandler())...)
		authGroup.POST("/register", append(authLimit, authHandlers.RegisterHandler())...)
		authGroup.POST("/forgot-password", append(authLimit, authHandlers.ForgotPasswordHandler())...)
		authGroup.POST("/reset-password", append(authLimit, authHandlers.ResetPasswordHandler())...)
		authGroup.POST("/email/verify", append(authLimit, authHandlers.VerifyEmailHandler())...)
		authGroup.POST("/2fa/challenge", append(authLimit, authHandlers.TwoFactorChallengeHandler())...)
	}

	// Authenticated account routes
	account := authGroup.Group("", middleware.RequireAuth())
	{
		account.GET("/me", authHandlers.MeHandler())
		account.POST("/logout", authHandlers.LogoutHandler())
		account.PUT("/profile", authHandlers.UpdateProfileHandler())
		account.PUT("/password", authHandlers.UpdatePasswordHandler())
		account.POST("/email/verification-notification", authHandlers.SendVerificationHandler())
		account.POST("/2fa/setup", authHandlers.TwoFactorSetupHandler())
		account.POST("/2fa/confirm", authHandlers.TwoFactorConfirmHandler())
		account.POST("/2fa/recovery-codes/regenerate", authHandlers.RegenerateRecoveryCodesHandler())
		account.DELETE("/2fa", authHandlers.TwoFactorDisableHandler())
	}

	// Plants
	plantGroup := v1.Group("/plants", middleware.RequireAuth())
	{
		plantGroup.GET("/list", plantHandlers.ListHandler())
		plantGroup.GET("/:uid/show", plantHandlers.DetailHandler())
		plantGroup.GET("/:uid/view", plantHandlers.DetailHandler())
		plantGroup.GET("/:uid/events", plantHandlers.EventsHandler())
		plantGroup.GET("/:uid/reaggregated-data", plantHandlers.ReaggregatedHandler())
	}

	// Plant onboarding requests
	requestGroup := v1.Group("/user-plants", middleware.RequireAuth())
	{
		requestGroup.GET("", requestHandlers.ListRequestsHandler())
		requestGroup.POST("", requestHandlers.CreateRequestHandler())
		reviewer := middleware.RequireRole(models.RoleAdmin, models.RoleStaff)
		requestGroup.POST("/:id/approve", reviewer, requestHandlers.ApproveHandler())
		requestGroup.POST("/:id/reject", reviewer, requestHandlers.RejectHandler())
	}

	// Admin
	adminGroup := v1.Group("/admin", middleware.RequireAuth())
	adminOnly := adminGroup.Group("", middleware.RequireRole(models.RoleAdmin))
	{
		adminOnly.GET("/users", userHandlers.ListUsersHandler())
		adminOnly.PUT("/users/:id", userHandlers.UpdateUserHandler())
		adminOnly.GET("/activity", statsHandler.ActivityHandler())
		adminOnly.GET("/analytics", statsHandler.AnalyticsHandler())
		adminOnly.GET("/api-docs", admin.APIDocsHandler(router.Routes))
		adminOnly.GET("/plant-name-mappings", mappingHandlers.ListMappingsHandler())
		adminOnly.POST("/plant-name-mappings/seed", mappingHandlers.SeedMappingsHandler())
		adminOnly.PUT("/plant-name-mappings/:uid", mappingHandlers.UpsertMappingHandler())
	}
	staffGroup := adminGroup.Group("", middleware.RequireRole(models.RoleAdmin, models.RoleStaff))
	{
		staffGroup.GET("/users/:id/plants", assignmentHandlers.ListAssignmentsHandler())
		staffGroup.POST("/users/:id/plants", assignmentHandlers.AssignPlantHandler())
		staffGroup.DELETE("/users/:id/plants/:uid", assignmentHandlers.UnassignPlantHandler())
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found."})
	})

	// Background jobs
	bg.tokenCleanup = jobs.NewTokenCleanupJob(tokenRepo, cfg.Jobs.TokenCleanupInterval)
	bg.tokenCleanup.Start(context.Background())

	return router, bg, nil
}

// newLimiter returns a Redis-backed limiter when rdb is set, otherwise an
// in-memory limiter registered for shutdown.
func (bg *BackgroundServices) newLimiter(rdb redis.UniversalClient, prefix string, cfg middleware.RateLimitConfig) middleware.Limiter {
	if rdb != nil {
		return middleware.NewRedisRateLimiter(rdb, redisKeyPrefix+prefix, cfg)
	}
	rl := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, rl)
	return rl
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis so that a
// readiness gate fails when challenges and rate limits would error.
func readinessHandler(db *sql.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the build version and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging. The output format follows
// the global slog handler configured by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest logs a request as a structured slog record. 5xx responses are
// logged at ERROR, 4xx at WARN.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	switch status := c.Writer.Status(); {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if userID, ok := c.Get(middleware.ContextUserIDKey); ok {
		attrs = append(attrs, slog.Any("user_id", userID))
	}
	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-Id")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
