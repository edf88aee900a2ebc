// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"github.com/renandiiias/build-automated-outreach/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	// The RouterContext provides access to shared middleware and configuration.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine, for public routes outside /api.
	Engine *gin.Engine
	// Public is the unauthenticated, per-IP rate limited group at the root.
	Public *gin.RouterGroup
	// Service is the /api/v1 group behind collaborator service tokens.
	Service *gin.RouterGroup
	// Config is the router configuration.
	Config RouterConfig
	// ServiceAuth validates collaborator tokens, for modules mounting extra groups.
	ServiceAuth gin.HandlerFunc
	// PublicRateLimiter limits unauthenticated routes.
	PublicRateLimiter *httpkit.IPRateLimiter
}
