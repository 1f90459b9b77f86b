package models

import (
	"time"
)

// Credential holds one tenant's connection to one external source.
// Tokens are encrypted at rest by the vault before they reach the store.
// One active credential per (tenant, source, workspace); connecting the
// same workspace again supersedes the previous row in place.
type Credential struct {
	ID           uint       `gorm:"primaryKey;autoIncrement"`
	TenantID     string     `gorm:"type:text;not null;uniqueIndex:uq_credentials_tenant_source_workspace;index"`
	Source       string     `gorm:"type:varchar(20);not null;uniqueIndex:uq_credentials_tenant_source_workspace"`
	WorkspaceID  string     `gorm:"type:text;not null;uniqueIndex:uq_credentials_tenant_source_workspace"`
	AccessToken  string     `gorm:"type:text;not null"`
	RefreshToken *string    `gorm:"type:text"`
	ExpiresAt    *time.Time `gorm:"index"`
	Scopes       *string    `gorm:"type:text"`
	BotUserID    *string    `gorm:"type:text"`
	IsActive     bool       `gorm:"not null;default:true;index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Credential) TableName() string {
	return "credentials"
}
