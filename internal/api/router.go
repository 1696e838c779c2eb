// Package api wires together all HTTP routes of the data portal.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated system endpoints.
//   - Everything under /api/v1 resolves a principal first. Requests without
//     credentials proceed as the anonymous principal, so public data stays readable
//     without an account; the embargo engine decides per artifact.
//   - Mutating project routes additionally require an authenticated principal and,
//     for embargo changes, a superuser.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/meertime/dataportal/internal/api/portal"
	"github.com/meertime/dataportal/internal/api/projects"
	"github.com/meertime/dataportal/internal/audit"
	"github.com/meertime/dataportal/internal/auth"
	"github.com/meertime/dataportal/internal/config"
	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/db/repositories"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/middleware"
	"github.com/meertime/dataportal/internal/services"
	"github.com/meertime/dataportal/internal/storage"
	"github.com/meertime/dataportal/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/meertime/dataportal/internal/storage/azure"
	_ "github.com/meertime/dataportal/internal/storage/gcs"
	_ "github.com/meertime/dataportal/internal/storage/local"
	_ "github.com/meertime/dataportal/internal/storage/s3"
)

// Version is reported by /version and the version command
var Version = "0.1.0"

// readinessProbePath is a known-absent object; Exists on it exercises credentials
// and connectivity without creating state.
const readinessProbePath = ".readiness-probe"

// BackgroundServices holds resources that must be released during graceful
// shutdown. The caller calls Shutdown after the HTTP server has drained.
type BackgroundServices struct {
	memoryLimiter *middleware.MemoryLimiter
	redisClient   *redis.Client
	shipper       audit.Shipper
	files         storage.Storage
	stopStats     context.CancelFunc
}

// Shutdown stops background goroutines and closes the audit sinks and the file store
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.stopStats != nil {
		bg.stopStats()
	}
	if bg.memoryLimiter != nil {
		bg.memoryLimiter.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	if closer, ok := bg.files.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("failed to close storage backend", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	bg := &BackgroundServices{}

	files, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)
	bg.files = files

	users := repositories.NewUserRepository(db)
	tokens := repositories.NewAPITokenRepository(db)
	memberships := repositories.NewMembershipRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	observations := repositories.NewObservationRepository(db)
	ephemerides := repositories.NewEphemerisRepository(db)
	toaRepo := repositories.NewToaRepository(db)

	accessor := embargo.NewAccessor(embargo.SystemClock)
	headline := cfg.Embargo.ToaHeadline
	toas := embargo.NewToaResolver(accessor, toaRepo, files, models.Decimation{
		DMCorrected: headline.DMCorrected,
		NsubType:    headline.NsubType,
		Nchan:       headline.Nchan,
		Npol:        headline.Npol,
	})
	portalSvc := services.NewPortal(accessor, observations, ephemerides, toas, files, services.PortalOptions{
		ExcludedProjectCodes: cfg.Embargo.ExcludedProjectCodes,
		PrimaryTelescope:     cfg.Embargo.PrimaryTelescope,
		DefaultMainProject:   cfg.Embargo.DefaultMainProject,
		ArchivePlaceholder:   cfg.Portal.ArchivePlaceholder,
	})
	projectSvc := services.NewProjects(projectRepo, memberships)

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.DevMode)
	if err != nil {
		return nil, nil, err
	}
	tokenPrefix := ""
	if cfg.Auth.APITokens.Enabled {
		tokenPrefix = cfg.Auth.APITokens.Prefix
	}
	authn := auth.NewAuthenticator(jwtManager, users, memberships, tokens, tokenPrefix)

	statsCtx, stopStats := context.WithCancel(context.Background())
	bg.stopStats = stopStats
	telemetry.StartDBStatsCollector(statsCtx, db, 30*time.Second)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins, cfg.Security.CORS.AllowedMethods))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, files))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(authn))

	if rl := cfg.Security.RateLimiting; rl.Enabled {
		limitCfg := middleware.RateLimitConfig{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.Burst,
			CleanupInterval:   5 * time.Minute,
		}
		var limiter middleware.Limiter
		if rl.RedisAddr != "" {
			bg.redisClient = redis.NewClient(&redis.Options{
				Addr:     rl.RedisAddr,
				Password: rl.RedisPassword,
				DB:       rl.RedisDB,
			})
			limiter = middleware.NewRedisLimiter(bg.redisClient, limitCfg)
			slog.Info("rate limiting backed by redis", "addr", rl.RedisAddr)
		} else {
			bg.memoryLimiter = middleware.NewMemoryLimiter(limitCfg)
			limiter = bg.memoryLimiter
		}
		apiV1.Use(middleware.RateLimitMiddleware(limiter))
	}

	if cfg.Audit.Enabled {
		shipper, err := audit.New(cfg.Audit)
		if err != nil {
			bg.Shutdown()
			return nil, nil, err
		}
		bg.shipper = shipper
		apiV1.Use(middleware.AuditMiddleware(shipper, cfg.Audit.LogFailedRequests))
	}

	portal.NewHandler(portalSvc, cfg.Portal.AllowAnonymousDownloads).Register(apiV1)
	projects.NewHandler(projectSvc).Register(apiV1)
	apiV1.GET("/me", meHandler())

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
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

// readinessHandler also probes the file store, so a readiness gate fails when
// downloads would error
func readinessHandler(db *sqlx.DB, files storage.Storage) gin.HandlerFunc {
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

		if _, err := files.Exists(c.Request.Context(), readinessProbePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// meHandler reports the principal the request was resolved to
func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := middleware.PrincipalFrom(c)
		body := gin.H{"kind": p.Kind().String()}
		if !p.IsAnonymous() {
			body["user_id"] = p.UserID()
			body["username"] = p.Username()
		}
		c.JSON(http.StatusOK, body)
	}
}

// LoggerMiddleware logs one structured record per request. Text or JSON output is
// chosen by the handler installed in telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestIDFrom(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if p := middleware.PrincipalFrom(c); !p.IsAnonymous() {
			attrs = append(attrs, slog.String("user", p.Username()))
		}

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
