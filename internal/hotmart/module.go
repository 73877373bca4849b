// Package hotmart provides the sales platform bounded context module.
// This file defines the module that encapsulates webhook setup and route
// registration.
package hotmart

import (
	"crm_bridge_backend/internal/events"
	apphttp "crm_bridge_backend/internal/http"
	"crm_bridge_backend/internal/idempotency"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/logger"
)

// Module is the sales bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and initializes the sales module with all its dependencies.
// guard and archive may be nil when redis or object storage are not configured.
func NewModule(crm CRMGateway, pipelines *pipeline.Resolver, auditor AuditRecorder, guard *idempotency.Guard, archive PayloadArchive, bus events.Bus, cfg config.HotmartConfig, log *logger.Logger) *Module {
	service := NewService(crm, pipelines, auditor, log)
	handler := NewHandler(service, cfg.GetHotmartToken(), guard, archive, bus, log)

	return &Module{
		handler: handler,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "hotmart"
}

// Service exposes the sales processor.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the webhook routes on the provided router context.
// Hotmart authenticates with its shared token, not with a JWT.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/hotmart")
	group.POST("/webhook", m.handler.HandleWebhook)
	group.POST("/test", m.handler.HandleTest)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
