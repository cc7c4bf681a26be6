// Package api wires the HTTP routes of the organization service.
//
// Route groups:
//   - /org/create, /org/get/:org_name and /admin/login are public. Login carries
//     its own stricter rate limit.
//   - /org/update, /org/delete, /org/list and /data/... require a bearer token
//     that still matches the registry (middleware.AuthMiddleware).
//   - /, /health, /ready and /version are system endpoints. Metrics are served
//     on a separate port by cmd/server, not by this router.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/orgspace/orgspace/internal/api/admin"
	"github.com/orgspace/orgspace/internal/audit"
	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/middleware"
)

// Version is the build version reported by /version. It is set at link time.
var Version = "dev"

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies are the collaborators the router needs.
type Dependencies struct {
	Tenants admin.TenantService
	Tokens  middleware.TokenValidator
	Authz   middleware.Authorizer
	// Liveness is pinged by /health.
	Liveness func(ctx context.Context) error
	// Readiness is run in order by /ready.
	Readiness []ReadinessCheck
	// Redis backs the shared rate limiter when security.rate_limiting.backend is "redis".
	Redis redis.UniversalClient
	// Audit receives a copy of every audit event. Nil keeps audit in the log only.
	Audit audit.Shipper
}

// BackgroundServices holds goroutines that must be stopped on shutdown.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops the in-memory rate limiter eviction loops.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(CORSMiddleware(cfg))

	var apiLimiter, loginLimiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		apiLimiter, loginLimiter = newLimiters(cfg, deps.Redis, bg)
		router.Use(middleware.RateLimitMiddleware(apiLimiter))
	}

	router.GET("/", rootHandler())
	router.GET("/health", healthCheckHandler(deps.Liveness))
	router.GET("/ready", readinessHandler(deps.Readiness))
	router.GET("/version", versionHandler())

	orgHandlers := admin.NewOrganizationHandlers(deps.Tenants)
	authHandlers := admin.NewAuthHandlers(deps.Tenants)
	dataHandlers := admin.NewDataHandlers(deps.Tenants)

	requireAuth := middleware.AuthMiddleware(deps.Tokens, deps.Authz)
	auditLog := middleware.AuditMiddleware(slog.Default(), deps.Audit)

	loginChain := []gin.HandlerFunc{auditLog}
	if loginLimiter != nil {
		loginChain = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(loginLimiter)}, loginChain...)
	}
	router.POST("/admin/login", append(loginChain, authHandlers.LoginHandler())...)

	org := router.Group("/org")
	{
		org.POST("/create", auditLog, orgHandlers.CreateOrganizationHandler())
		org.GET("/get/:org_name", orgHandlers.GetOrganizationHandler())

		authed := org.Group("")
		authed.Use(auditLog, requireAuth)
		authed.GET("/list", orgHandlers.ListOrganizationsHandler())
		authed.PUT("/update", orgHandlers.RenameOrganizationHandler())
		authed.DELETE("/delete", orgHandlers.DeleteOrganizationHandler())
	}

	data := router.Group("/data")
	data.Use(auditLog, requireAuth)
	{
		data.GET("", dataHandlers.ListCollectionsHandler())
		data.GET("/:collection", dataHandlers.ListDocumentsHandler())
		data.POST("/:collection", dataHandlers.InsertDocumentHandler())
		data.GET("/:collection/:id", dataHandlers.GetDocumentHandler())
		data.DELETE("/:collection/:id", dataHandlers.DeleteDocumentHandler())
	}

	return router, bg
}

// newLimiters builds the API-wide and login limiters for the configured backend.
func newLimiters(cfg *config.Config, client redis.UniversalClient, bg *BackgroundServices) (api, login middleware.Limiter) {
	rl := cfg.Security.RateLimiting
	apiCfg := middleware.DefaultRateLimitConfig()
	if rl.RequestsPerMinute > 0 {
		apiCfg.RequestsPerMinute = rl.RequestsPerMinute
	}
	if rl.Burst > 0 {
		apiCfg.BurstSize = rl.Burst
	}
	loginCfg := middleware.LoginRateLimitConfig()
	if rl.LoginPerMinute > 0 {
		loginCfg.RequestsPerMinute = rl.LoginPerMinute
	}

	if rl.Backend == "redis" && client != nil {
		slog.Info("using redis rate limiter", "requests_per_minute", apiCfg.RequestsPerMinute, "login_per_minute", loginCfg.RequestsPerMinute)
		return middleware.NewRedisLimiter(client, "orgspace:ratelimit:api:", apiCfg),
			middleware.NewRedisLimiter(client, "orgspace:ratelimit:login:", loginCfg)
	}

	apiRL := middleware.NewRateLimiter(apiCfg)
	loginRL := middleware.NewRateLimiter(loginCfg)
	bg.rateLimiters = append(bg.rateLimiters, apiRL, loginRL)
	return apiRL, loginRL
}

// @Summary      Service banner
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       / [get]
func rootHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "Org Management Backend running"})
	}
}

// @Summary      Health check
// @Description  Liveness probe. Pings the document store and the registry.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy"
// @Router       /health [get]
func healthCheckHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				slog.Warn("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "store connection failed",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Probes every backing dependency.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
func readinessHandler(checks []ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		results := gin.H{}
		for _, chk := range checks {
			if err := chk.Check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", chk.Name, "error", err)
				results[chk.Name] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": results,
					"error":  chk.Name + " not ready",
				})
				return
			}
			results[chk.Name] = "healthy"
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware writes one structured record per request through the
// default slog logger, whose handler (json or text) is set by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.GetRequestID(c)),
		}
		if p, ok := middleware.GetPrincipal(c); ok {
			attrs = append(attrs, slog.String("org_name", p.OrgName))
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware answers preflight requests and sets CORS headers for allowed origins.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, o := range cfg.Security.CORS.AllowedOrigins {
			if o == "*" {
				allowed, wildcard = true, true
				break
			}
			if o == origin && origin != "" {
				allowed = true
				break
			}
		}

		if allowed {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
			c.Header("Access-Control-Max-Age", strconv.Itoa(3600))
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
