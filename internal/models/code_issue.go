package models

import (
	"time"
)

// CodeIssue is one ingested code-host issue (as opposed to a tracker
// issue), keyed by the provider id. Assignees and labels are stored
// comma-joined the way the feed renders them.
type CodeIssue struct {
	TenantID        string     `gorm:"primaryKey;type:text;comment:租户ID"`
	ID              string     `gorm:"primaryKey;type:text;comment:问题唯一标识"`
	Number          int        `gorm:"not null;comment:问题编号"`
	Title           string     `gorm:"type:text;comment:标题"`
	Body            string     `gorm:"type:text;comment:描述"`
	State           string     `gorm:"type:text;index;comment:状态"`
	URL             string     `gorm:"type:text;comment:链接"`
	RepoFullName    string     `gorm:"type:text;index;comment:仓库全名"`
	Author          string     `gorm:"type:text;comment:作者"`
	Assignees       string     `gorm:"type:text;comment:经办人(逗号分隔)"`
	Labels          string     `gorm:"type:text;comment:标签(逗号分隔)"`
	SourceCreatedAt *time.Time `gorm:"comment:源创建时间"`
	SourceUpdatedAt *time.Time `gorm:"index;comment:源更新时间"`
	SourceClosedAt  *time.Time `gorm:"comment:远端关闭时间"`
	StoredAt        time.Time  `gorm:"autoUpdateTime;comment:入库时间"`
}

func (CodeIssue) TableName() string {
	return "code_issues"
}
