// Package jelou provides the chat platform bounded context module.
// This file defines the module that encapsulates chat setup and route registration.
package jelou

import (
	apphttp "crm_bridge_backend/internal/http"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/logger"
	"crm_bridge_backend/platform/validator"
)

// Module is the chat bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and initializes the chat module with all its dependencies.
func NewModule(crm CRMGateway, chat ChatSender, pipelines *pipeline.Resolver, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(crm, chat, pipelines, log)
	handler := NewHandler(service, val, log)

	return &Module{
		handler: handler,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "jelou"
}

// Service exposes the chat processor.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts chat webhook routes on the provided router context.
// These endpoints are called by the chat platform and the CRM's automation
// rules; they carry no JWT.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/jelou")
	group.POST("/webhook", m.handler.HandleInboundMessage)
	group.POST("/responder", m.handler.HandleReply)
	group.POST("/terminar/chat", m.handler.HandleCloseChat)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
