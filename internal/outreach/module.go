// Package outreach provides the HTTP-facing module of the outreach control loop.
package outreach

import (
	apphttp "github.com/renandiiias/build-automated-outreach/internal/http"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/handler"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/service"
)

// Module wires the outreach webhooks and the public unsubscribe page.
type Module struct {
	svc           *service.Service
	handler       *handler.Handler
	publicHandler *handler.PublicHandler
}

// NewModule creates the outreach module around an assembled service.
func NewModule(svc *service.Service) *Module {
	return &Module{
		svc:           svc,
		handler:       handler.New(svc),
		publicHandler: handler.NewPublicHandler(svc),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "outreach"
}

// Service exposes the outreach service for other composition roots.
func (m *Module) Service() *service.Service {
	return m.svc
}

// RegisterRoutes mounts the webhooks under /api/v1 and the unsubscribe page at the root.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Service)
	m.publicHandler.RegisterRoutes(ctx.Public)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
