package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"teamsync/internal/repository"
	"teamsync/internal/service"
)

type TenantHandler struct {
	Account *service.AccountService
	Repo    repository.Repository
	Logger  *zap.Logger
}

func (h *TenantHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/tenants")
	group.POST("", h.signup)
	group.GET("/:tenant_id", h.getTenant)
	group.GET("/:tenant_id/stats", h.getStats)
}

type signupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
}

// @Summary Create a tenant with its owner account
// @Tags tenants
// @Accept json
// @Param body body signupRequest true "signup payload"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants [post]
func (h *TenantHandler) signup(c *gin.Context) {
	if h.Account == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	tenant, owner, err := h.Account.Signup(c.Request.Context(), req.Email, req.Name, req.Tier)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailRequired), errors.Is(err, service.ErrUnknownTier):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, gorm.ErrDuplicatedKey):
			Error(c, http.StatusConflict, "email already registered", nil)
		default:
			if h.Logger != nil {
				h.Logger.Warn("signup failed", zap.Error(err))
			}
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, gin.H{"tenant": tenant, "owner": owner}, nil)
}

// @Summary Get a tenant with its connected sources
// @Tags tenants
// @Param tenant_id path string true "tenant id"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id} [get]
func (h *TenantHandler) getTenant(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if tenantID == "" {
		Error(c, http.StatusBadRequest, "tenant_id required", nil)
		return
	}
	tenant, err := h.Repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if tenant == nil {
		Error(c, http.StatusNotFound, "tenant not found", nil)
		return
	}
	sources, err := h.Repo.ListConnectedSources(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"tenant": tenant, "connected_sources": sources}, nil)
}

// @Summary Get per-kind ingested record counts
// @Tags tenants
// @Param tenant_id path string true "tenant id"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id}/stats [get]
func (h *TenantHandler) getStats(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if tenantID == "" {
		Error(c, http.StatusBadRequest, "tenant_id required", nil)
		return
	}
	counts, err := h.Repo.CountRecords(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, counts, nil)
}
