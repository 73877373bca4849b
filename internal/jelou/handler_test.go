package jelou

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"crm_bridge_backend/platform/logger"
	"crm_bridge_backend/platform/validator"
)

func newChatRouter(t *testing.T, crm *fakeCRM, chat *fakeChat) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(crm, chat)
	h := NewHandler(svc, validator.New(), logger.New("development"))

	engine := gin.New()
	engine.POST("/api/v1/jelou/webhook", h.HandleInboundMessage)
	engine.POST("/api/v1/jelou/responder", h.HandleReply)
	return engine
}

func postJSON(engine *gin.Engine, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestInboundWebhookRegistersMessage(t *testing.T) {
	crm := &fakeCRM{createdContact: "11", createdDealID: "55"}
	engine := newChatRouter(t, crm, &fakeChat{})

	rec := postJSON(engine, "/api/v1/jelou/webhook",
		`{"telefono":"+593991234567","mensaje":"Hola","nombre":"Juan"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"dealId":"55"`) {
		t.Fatalf("response must carry the deal id, got %s", rec.Body.String())
	}
}

func TestInboundWebhookRejectsMissingFields(t *testing.T) {
	engine := newChatRouter(t, &fakeCRM{}, &fakeChat{})

	rec := postJSON(engine, "/api/v1/jelou/webhook", `{"nombre":"Juan"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing telefono/mensaje, got %d", rec.Code)
	}
}

func TestInboundWebhookMapsCRMFailureToBadGateway(t *testing.T) {
	crm := &fakeCRM{findErr: errors.New("bitrix api error (status 500)")}
	engine := newChatRouter(t, crm, &fakeChat{})

	rec := postJSON(engine, "/api/v1/jelou/webhook",
		`{"telefono":"+593991234567","mensaje":"Hola"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("CRM failure must answer 502, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "mensaje no registrado") {
		t.Fatalf("expected the upstream message, got %s", rec.Body.String())
	}
}

func TestReplyRequiresDealID(t *testing.T) {
	engine := newChatRouter(t, &fakeCRM{}, &fakeChat{})

	rec := postJSON(engine, "/api/v1/jelou/responder", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", rec.Code)
	}
}
