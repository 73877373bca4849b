package audit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"crm_bridge_backend/platform/logger"
)

func newAuditRouter(t *testing.T, store *fakeStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(store)
	h := NewHandler(svc, logger.New("development"))

	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1/admin/audit"))
	return engine
}

func getPath(engine *gin.Engine, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestListRejectsMalformedDateRange(t *testing.T) {
	engine := newAuditRouter(t, &fakeStore{})

	rec := getPath(engine, "/api/v1/admin/audit/logs?start_date=not-a-date&end_date=2026-01-31T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed start_date, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "RFC3339") {
		t.Fatalf("expected a validation message, got %s", rec.Body.String())
	}
}

func TestListRejectsHalfOpenDateRange(t *testing.T) {
	engine := newAuditRouter(t, &fakeStore{})

	rec := getPath(engine, "/api/v1/admin/audit/logs?start_date=2026-01-01T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when only one bound is given, got %d", rec.Code)
	}
}

func TestListWithoutDatesReturnsTrail(t *testing.T) {
	store := &fakeStore{}
	store.inserted = append(store.inserted, Entry{ID: 1, Action: "compra_procesada", Module: "hotmart"})
	engine := newAuditRouter(t, store)

	rec := getPath(engine, "/api/v1/admin/audit/logs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("expected the unpaginated total, got %s", rec.Body.String())
	}
}

func TestStatsRejectsMalformedDateRange(t *testing.T) {
	engine := newAuditRouter(t, &fakeStore{})

	rec := getPath(engine, "/api/v1/admin/audit/stats?start_date=2026-01-01T00:00:00Z&end_date=bad")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed end_date, got %d", rec.Code)
	}
}
