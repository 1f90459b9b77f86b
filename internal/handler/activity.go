package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"teamsync/internal/repository"
	"teamsync/internal/service"
)

type ActivityHandler struct {
	Service *service.ActivityService
	Logger  *zap.Logger
}

func (h *ActivityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/tenants/:tenant_id/activity")
	group.GET("", h.list)
}

// @Summary List the tenant activity feed
// @Tags activity
// @Param tenant_id path string true "tenant id"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param type query string false "entry type filter"
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id}/activity [get]
func (h *ActivityHandler) list(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	entryType := strQueryPtr(c, "type")
	var since *time.Time
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid since", nil)
			return
		}
		t := ts.UTC()
		since = &t
	}

	items, total, err := h.Service.List(c.Request.Context(), tenantID, repository.ListActivityParams{
		Limit:  limit,
		Offset: offset,
		Type:   entryType,
		Since:  since,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list activity failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
