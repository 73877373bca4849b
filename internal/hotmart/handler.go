package hotmart

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_bridge_backend/internal/events"
	"crm_bridge_backend/internal/idempotency"
	"crm_bridge_backend/platform/logger"
)

// PayloadArchive stores the raw webhook body for later inspection.
type PayloadArchive interface {
	Store(ctx context.Context, webhookID string, payload []byte) error
}

// Handler receives Hotmart webhook deliveries, authenticates them and hands
// them to the sales processor.
type Handler struct {
	service *Service
	token   string
	guard   *idempotency.Guard
	archive PayloadArchive
	bus     events.Bus
	log     *logger.Logger
}

func NewHandler(service *Service, token string, guard *idempotency.Guard, archive PayloadArchive, bus events.Bus, log *logger.Logger) *Handler {
	return &Handler{service: service, token: token, guard: guard, archive: archive, bus: bus, log: log}
}

// HandleWebhook processes one delivery. Processing failures respond with
// HTTP 200 and success=false: a non-2xx would make Hotmart retry an event
// that will fail the same way again.
func (h *Handler) HandleWebhook(c *gin.Context) {
	started := time.Now()

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no se pudo leer el cuerpo de la solicitud"})
		return
	}

	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payload inválido"})
		return
	}

	// Token precedence: body field, then query parameter, then header.
	hottok := evt.Hottok
	if hottok == "" {
		hottok = c.Query("hottok")
	}
	if hottok == "" {
		hottok = c.GetHeader("X-Hotmart-Hottok")
	}

	if hottok == "" {
		h.rejectToken(c, "token no proporcionado")
		return
	}
	if !tokenMatches(h.token, hottok) {
		h.rejectToken(c, "token inválido")
		return
	}

	webhookID := evt.ID
	if webhookID == "" {
		webhookID = uuid.NewString()
	}
	h.archivePayload(c.Request.Context(), webhookID, raw)

	if evt.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "evento no especificado"})
		return
	}

	h.log.WebhookReceived("hotmart", evt.Event, webhookID, c.ClientIP())

	fresh, err := h.guard.Claim(c.Request.Context(), evt.ID)
	if err != nil {
		// Dedupe is best effort: a Redis outage must not drop sales events.
		h.log.Warn("idempotency check unavailable, processing anyway", "webhookId", webhookID, "error", err)
		fresh = true
	}
	if !fresh {
		h.log.Info("duplicate webhook ignored", "webhookId", webhookID, "event", evt.Event)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "evento duplicado ignorado", "duplicate": true})
		return
	}

	result, err := h.service.Process(c.Request.Context(), &evt, Meta{SourceIP: c.ClientIP()})
	if err != nil {
		// Release the claim so a retry of this delivery is processed.
		if relErr := h.guard.Release(context.WithoutCancel(c.Request.Context()), evt.ID); relErr != nil {
			h.log.Warn("idempotency release failed", "webhookId", webhookID, "error", relErr)
		}

		h.log.Error("hotmart webhook processing failed", "event", evt.Event, "webhookId", webhookID, "error", err)
		h.bus.Publish(c.Request.Context(), events.WebhookProcessingFailed{
			BaseEvent: events.NewBaseEvent(),
			Source:    "hotmart",
			EventType: evt.Event,
			WebhookID: webhookID,
			Reason:    err.Error(),
		})

		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Error al procesar webhook",
			"error":   err.Error(),
		})
		return
	}

	elapsed := time.Since(started).Milliseconds()
	h.log.WebhookProcessed("hotmart", evt.Event, result.Status, elapsed)

	if result.Status == StatusProcessed {
		h.bus.Publish(c.Request.Context(), events.PurchaseProcessed{
			BaseEvent:   events.NewBaseEvent(),
			EventType:   evt.Event,
			ContactID:   result.ContactID,
			DealID:      result.DealID,
			ProductName: result.Product,
			BuyerEmail:  buyerEmail(&evt),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            "Webhook procesado correctamente",
		"result":             result,
		"processing_time_ms": elapsed,
	})
}

// HandleTest is a connectivity probe for the integration setup.
func (h *Handler) HandleTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "Endpoint de Hotmart funcionando correctamente",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// rejectToken answers 401 without echoing anything about the expected token.
func (h *Handler) rejectToken(c *gin.Context, reason string) {
	h.log.WebhookRejected("hotmart", reason, c.ClientIP())
	h.bus.Publish(c.Request.Context(), events.WebhookAuthFailed{
		BaseEvent: events.NewBaseEvent(),
		Source:    "hotmart",
		SourceIP:  c.ClientIP(),
		Path:      c.FullPath(),
	})
	c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": reason})
}

func (h *Handler) archivePayload(ctx context.Context, webhookID string, raw []byte) {
	if h.archive == nil {
		return
	}
	if err := h.archive.Store(ctx, webhookID, raw); err != nil {
		h.log.Warn("webhook payload archive failed", "webhookId", webhookID, "error", err)
	}
}

func buyerEmail(evt *Event) string {
	if evt.Data.Buyer != nil {
		return evt.Data.Buyer.Email
	}
	return ""
}

// tokenMatches hashes both tokens before comparing so the comparison is
// constant time regardless of input lengths.
func tokenMatches(expected, got string) bool {
	a := sha256.Sum256([]byte(expected))
	b := sha256.Sum256([]byte(got))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
