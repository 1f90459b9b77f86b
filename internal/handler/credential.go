package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"teamsync/internal/collector"
	"teamsync/internal/models"
	"teamsync/internal/repository"
	"teamsync/internal/vault"
)

type CredentialHandler struct {
	Repo   repository.Repository
	Vault  *vault.Vault
	Logger *zap.Logger
}

func (h *CredentialHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/tenants/:tenant_id/credentials")
	group.PUT("/:source", h.connect)
	group.DELETE("/:source", h.disconnect)
}

type connectRequest struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresAt    *string `json:"expires_at"`
	Scopes       *string `json:"scopes"`
	WorkspaceID  string  `json:"workspace_id"`
	BotUserID    *string `json:"bot_user_id"`
}

// @Summary Connect a source by storing its credential
// @Tags credentials
// @Accept json
// @Param tenant_id path string true "tenant id"
// @Param source path string true "slack|linear|github"
// @Param body body connectRequest true "credential payload"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id}/credentials/{source} [put]
func (h *CredentialHandler) connect(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	source := strings.ToLower(strings.TrimSpace(c.Param("source")))
	if !collector.KnownSource(source) {
		Error(c, http.StatusBadRequest, "unknown source", nil)
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
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		Error(c, http.StatusBadRequest, "access_token required", nil)
		return
	}
	var expiresAt *time.Time
	if req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ExpiresAt))
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid expires_at", nil)
			return
		}
		t := ts.UTC()
		expiresAt = &t
	}

	accessToken, err := h.Vault.Encrypt(strings.TrimSpace(req.AccessToken))
	if err != nil {
		Error(c, http.StatusInternalServerError, "encrypt failed", nil)
		return
	}
	var refreshToken *string
	if req.RefreshToken != nil && strings.TrimSpace(*req.RefreshToken) != "" {
		enc, err := h.Vault.Encrypt(strings.TrimSpace(*req.RefreshToken))
		if err != nil {
			Error(c, http.StatusInternalServerError, "encrypt failed", nil)
			return
		}
		refreshToken = &enc
	}

	cred := &models.Credential{
		TenantID:     tenantID,
		Source:       source,
		WorkspaceID:  strings.TrimSpace(req.WorkspaceID),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       req.Scopes,
		BotUserID:    req.BotUserID,
		IsActive:     true,
	}
	if err := h.Repo.SaveCredential(c.Request.Context(), cred); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("save credential failed",
				zap.String("tenant_id", tenantID),
				zap.String("source", source),
				zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	// Never echo token material, encrypted or not.
	Ok(c, gin.H{
		"source":       source,
		"workspace_id": cred.WorkspaceID,
		"is_active":    cred.IsActive,
	}, nil)
}

// @Summary Disconnect a source
// @Tags credentials
// @Param tenant_id path string true "tenant id"
// @Param source path string true "slack|linear|github"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id}/credentials/{source} [delete]
func (h *CredentialHandler) disconnect(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	source := strings.ToLower(strings.TrimSpace(c.Param("source")))
	if !collector.KnownSource(source) {
		Error(c, http.StatusBadRequest, "unknown source", nil)
		return
	}
	if err := h.Repo.DeactivateCredential(c.Request.Context(), tenantID, source); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"source": source, "is_active": false}, nil)
}
