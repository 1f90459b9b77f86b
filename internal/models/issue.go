package models

import (
	"time"
)

// Issue is one ingested tracker issue, keyed by the provider-assigned id.
// Mutable fields (title, state, description, assignee) refresh on re-ingest.
type Issue struct {
	TenantID        string     `gorm:"primaryKey;type:text;comment:租户ID"`
	ID              string     `gorm:"primaryKey;type:text;comment:工单唯一标识"`
	Identifier      string     `gorm:"type:text;index;comment:工单编号(如ENG-123)"`
	Title           string     `gorm:"type:text;comment:标题"`
	Description     string     `gorm:"type:text;comment:描述"`
	StateName       string     `gorm:"type:text;comment:状态名称"`
	StateType       string     `gorm:"type:text;index;comment:状态类型"`
	URL             string     `gorm:"type:text;comment:链接"`
	AssigneeName    *string    `gorm:"type:text;comment:经办人"`
	TeamID          *string    `gorm:"type:text;index;comment:团队ID"`
	ParentID        *string    `gorm:"type:text;comment:父工单ID"`
	ParentTitle     *string    `gorm:"type:text;comment:父工单标题"`
	SourceCreatedAt *time.Time `gorm:"comment:源创建时间"`
	SourceUpdatedAt *time.Time `gorm:"index;comment:源更新时间"`
	StoredAt        time.Time  `gorm:"autoUpdateTime;comment:入库时间"`
}

func (Issue) TableName() string {
	return "issues"
}
