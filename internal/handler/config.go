package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"teamsync/internal/repository"
)

type ConfigHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *ConfigHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/tenants/:tenant_id/config")
	group.GET("", h.getConfig)
	group.PUT("", h.putConfig)
}

// @Summary Get tenant ingestion config
// @Tags config
// @Param tenant_id path string true "tenant id"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id}/config [get]
func (h *ConfigHandler) getConfig(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	tenant, err := h.Repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if tenant == nil {
		Error(c, http.StatusNotFound, "tenant not found", nil)
		return
	}
	cfg, err := h.Repo.GetTenantConfig(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, cfg, nil)
}

// Absent fields keep their stored value; an explicit empty list clears
// the scope back to provider defaults.
type putConfigRequest struct {
	SlackChannelIDs      []string       `json:"slack_channel_ids"`
	LinearTeamID         *string        `json:"linear_team_id"`
	GitHubOrgs           []string       `json:"github_orgs"`
	GitHubRepos          []string       `json:"github_repos"`
	AutoSync             *bool          `json:"auto_sync"`
	SyncThreadReplies    *bool          `json:"sync_thread_replies"`
	NotificationSettings map[string]any `json:"notification_settings"`
}

// @Summary Update tenant ingestion config
// @Tags config
// @Accept json
// @Param tenant_id path string true "tenant id"
// @Param body body putConfigRequest true "config payload"
// @Success 200 {object} apiResponse
// @Router /api/v1/tenants/{tenant_id}/config [put]
func (h *ConfigHandler) putConfig(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	tenant, err := h.Repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if tenant == nil {
		Error(c, http.StatusNotFound, "tenant not found", nil)
		return
	}
	var req putConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}

	cfg, err := h.Repo.GetTenantConfig(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if req.SlackChannelIDs != nil {
		cfg.SlackChannelIDs = jsonStringList(req.SlackChannelIDs)
	}
	if req.LinearTeamID != nil {
		if team := strings.TrimSpace(*req.LinearTeamID); team != "" {
			cfg.LinearTeamID = &team
		} else {
			cfg.LinearTeamID = nil
		}
	}
	if req.GitHubOrgs != nil {
		cfg.GitHubOrgs = jsonStringList(req.GitHubOrgs)
	}
	if req.GitHubRepos != nil {
		cfg.GitHubRepos = jsonStringList(req.GitHubRepos)
	}
	if req.AutoSync != nil || req.SyncThreadReplies != nil {
		if cfg.WorkflowSettings == nil {
			cfg.WorkflowSettings = datatypes.JSONMap{}
		}
		if req.AutoSync != nil {
			cfg.WorkflowSettings["auto_sync"] = *req.AutoSync
		}
		if req.SyncThreadReplies != nil {
			cfg.WorkflowSettings["sync_thread_replies"] = *req.SyncThreadReplies
		}
	}
	if req.NotificationSettings != nil {
		cfg.NotificationSettings = datatypes.JSONMap(req.NotificationSettings)
	}

	if err := h.Repo.SaveTenantConfig(c.Request.Context(), cfg); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("save tenant config failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	saved, err := h.Repo.GetTenantConfig(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, saved, nil)
}

func jsonStringList(items []string) datatypes.JSON {
	items = cleanStrings(items)
	if len(items) == 0 {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
