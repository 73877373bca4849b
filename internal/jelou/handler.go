package jelou

import (
	"crm_bridge_backend/platform/apperr"
	"crm_bridge_backend/platform/httpkit"
	"crm_bridge_backend/platform/logger"
	"crm_bridge_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// InboundMessageRequest is the chat platform's webhook payload.
type InboundMessageRequest struct {
	Telefono string `json:"telefono" validate:"required"`
	Mensaje  string `json:"mensaje" validate:"required"`
	Nombre   string `json:"nombre"`
}

// Handler exposes the chat webhook endpoints.
type Handler struct {
	service *Service
	val     *validator.Validator
	log     *logger.Logger
}

// NewHandler creates the chat HTTP handler.
func NewHandler(service *Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// HandleInboundMessage receives a chat message and registers it in the CRM.
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	var req InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid payload"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation("telefono and mensaje are required"))
		return
	}

	dealID, err := h.service.InboundMessage(c.Request.Context(), req.Nombre, req.Telefono, req.Mensaje)
	if err != nil {
		h.log.Error("inbound chat message failed", "error", err)
		httpkit.HandleError(c, apperr.Upstream("mensaje no registrado", err))
		return
	}

	httpkit.OK(c, gin.H{
		"status": "mensaje recibido y registrado en Bitrix",
		"dealId": dealID,
	})
}

// HandleReply relays the negotiation's pending advisor reply to the chat user.
func (h *Handler) HandleReply(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		httpkit.HandleError(c, apperr.BadRequest("id query parameter is required"))
		return
	}

	if err := h.service.Reply(c.Request.Context(), id); err != nil {
		h.log.Error("advisor reply failed", "deal_id", id, "error", err)
		httpkit.HandleError(c, apperr.Upstream("respuesta no enviada", err))
		return
	}

	httpkit.OK(c, gin.H{"status": "mensaje recibido y registrado en Bitrix"})
}

// HandleCloseChat closes the chat conversation linked to a negotiation.
func (h *Handler) HandleCloseChat(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		httpkit.HandleError(c, apperr.BadRequest("id query parameter is required"))
		return
	}

	if err := h.service.CloseChat(c.Request.Context(), id); err != nil {
		h.log.Error("chat close failed", "deal_id", id, "error", err)
		httpkit.HandleError(c, apperr.Upstream("conversación no cerrada", err))
		return
	}

	httpkit.OK(c, gin.H{"status": "mensaje recibido y registrado en jelou"})
}
