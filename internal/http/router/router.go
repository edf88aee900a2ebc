package router

import (
	"context"
	"net/http"
	"time"

	apphttp "github.com/renandiiias/build-automated-outreach/internal/http"
	"github.com/renandiiias/build-automated-outreach/internal/http/middleware"
	"github.com/renandiiias/build-automated-outreach/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const healthTimeout = 2 * time.Second

// New builds the gin engine with shared middleware and mounts every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/api/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if app.Health != nil {
			if err := app.Health.Ping(ctx); err != nil {
				app.Logger.WithContext(ctx).Error("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	publicLimiter := httpkit.NewPublicRateLimiter(app.Logger)
	serviceLimiter := httpkit.NewIPRateLimiter(rate.Limit(20), 100, app.Logger)
	serviceAuth := httpkit.ServiceAuth(app.Config.GetServiceJWTSecret())

	rc := &apphttp.RouterContext{
		Engine:            engine,
		Public:            engine.Group("", publicLimiter.RateLimit()),
		Service:           engine.Group("/api/v1", serviceLimiter.RateLimit(), serviceAuth),
		Config:            app.Config,
		ServiceAuth:       serviceAuth,
		PublicRateLimiter: publicLimiter,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Info("http module registered", "module", m.Name())
	}
	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() || len(cfg.GetCORSOrigins()) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
