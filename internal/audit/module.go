// Package audit provides the audit trail bounded context module.
// This file defines the module that encapsulates audit setup and route registration.
package audit

import (
	apphttp "crm_bridge_backend/internal/http"
	"crm_bridge_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the audit bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the audit module with all its dependencies.
func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, log)
	handler := NewHandler(service, log)

	return &Module{
		service: service,
		handler: handler,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "audit"
}

// Service exposes the audit recorder for the event processors.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the audit query surface (JWT auth + admin role).
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/audit"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
