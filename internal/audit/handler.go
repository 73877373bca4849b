package audit

import (
	"strconv"
	"time"

	"crm_bridge_backend/platform/apperr"
	"crm_bridge_backend/platform/httpkit"
	"crm_bridge_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Handler exposes the read-only audit query surface.
type Handler struct {
	service *Service
	log     *logger.Logger
}

// NewHandler creates the audit HTTP handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the audit query routes on the admin group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/logs", h.list)
	group.GET("/stats", h.stats)
	group.GET("/deals/:dealId", h.byDeal)
	group.GET("/contacts/:contactId", h.byContact)
	group.GET("/phones/:phone", h.byPhone)
}

func (h *Handler) list(c *gin.Context) {
	filter := ListFilter{
		Module: c.Query("module"),
		Action: c.Query("action"),
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	start, end, err := queryDateRange(c)
	if httpkit.HandleError(c, err) {
		return
	}
	filter.StartDate = start
	filter.EndDate = end

	identity := httpkit.GetIdentity(c)
	h.log.Debug("audit log query", "user_id", identity.UserID(), "module", filter.Module)

	result, err := h.service.List(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) stats(c *gin.Context) {
	start, end, err := queryDateRange(c)
	if httpkit.HandleError(c, err) {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), start, end)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

func (h *Handler) byDeal(c *gin.Context) {
	entries, err := h.service.ByDealID(c.Request.Context(), c.Param("dealId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, entries)
}

func (h *Handler) byContact(c *gin.Context) {
	entries, err := h.service.ByContactID(c.Request.Context(), c.Param("contactId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, entries)
}

func (h *Handler) byPhone(c *gin.Context) {
	entries, err := h.service.ByPhone(c.Request.Context(), c.Param("phone"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, entries)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// queryDateRange parses start_date and end_date. Absent parameters mean an
// unbounded query; present ones must both be valid RFC3339 timestamps.
func queryDateRange(c *gin.Context) (*time.Time, *time.Time, error) {
	startRaw, endRaw := c.Query("start_date"), c.Query("end_date")
	if startRaw == "" && endRaw == "" {
		return nil, nil, nil
	}
	if startRaw == "" || endRaw == "" {
		return nil, nil, apperr.Validation("start_date and end_date must be provided together")
	}

	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return nil, nil, apperr.Validation("start_date must be an RFC3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return nil, nil, apperr.Validation("end_date must be an RFC3339 timestamp")
	}

	return &start, &end, nil
}
