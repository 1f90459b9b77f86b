package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TenantConfig carries per-tenant ingestion settings. Reads go through
// the repository, which returns a default config when no row exists.
type TenantConfig struct {
	TenantID             string            `gorm:"primaryKey;type:text"`
	SlackChannelIDs      datatypes.JSON    `gorm:"column:slack_channel_ids"`
	LinearTeamID         *string           `gorm:"type:text"`
	GitHubOrgs           datatypes.JSON    `gorm:"column:github_orgs"`
	GitHubRepos          datatypes.JSON    `gorm:"column:github_repos"`
	WorkflowSettings     datatypes.JSONMap `gorm:"column:workflow_settings"`
	NotificationSettings datatypes.JSONMap `gorm:"column:notification_settings"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TenantConfig) TableName() string {
	return "tenant_configs"
}

// DefaultTenantConfig is what callers see before a tenant has saved
// anything: auto-sync on, thread replies on, no scope restrictions.
func DefaultTenantConfig(tenantID string) *TenantConfig {
	return &TenantConfig{
		TenantID:         tenantID,
		WorkflowSettings: datatypes.JSONMap{},
	}
}

// AutoSyncEnabled defaults to true when the setting is absent.
func (c *TenantConfig) AutoSyncEnabled() bool {
	return c.workflowBool("auto_sync", true)
}

// ThreadRepliesEnabled defaults to true when the setting is absent.
func (c *TenantConfig) ThreadRepliesEnabled() bool {
	return c.workflowBool("sync_thread_replies", true)
}

func (c *TenantConfig) workflowBool(key string, def bool) bool {
	if c == nil || c.WorkflowSettings == nil {
		return def
	}
	v, ok := c.WorkflowSettings[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// SourceScopes returns the configured allow-list for a source. Empty
// means provider defaults: every conversation, every team, the viewer's
// repositories. GitHub mixes repo full names and bare owner names.
func (c *TenantConfig) SourceScopes(source string) []string {
	if c == nil {
		return nil
	}
	switch source {
	case "slack":
		return jsonStrings(c.SlackChannelIDs)
	case "linear":
		if c.LinearTeamID == nil {
			return nil
		}
		if team := strings.TrimSpace(*c.LinearTeamID); team != "" {
			return []string{team}
		}
		return nil
	case "github":
		return append(jsonStrings(c.GitHubRepos), jsonStrings(c.GitHubOrgs)...)
	}
	return nil
}

func jsonStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
