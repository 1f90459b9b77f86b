package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState tracks incremental progress for one (tenant, source, scope)
// triple. WatermarkTS only moves forward; failed runs record LastError
// and LastAttemptAt without touching the watermark.
type SyncState struct {
	TenantID      string         `gorm:"primaryKey;type:text;comment:租户ID"`
	Source        string         `gorm:"primaryKey;type:text;comment:数据源"`
	ScopeKey      string         `gorm:"primaryKey;type:text;comment:同步范围标识"`
	Cursor        *string        `gorm:"type:text;comment:分页游标"`
	WatermarkTS   *time.Time     `gorm:"comment:更新时间水位"`
	LastSuccessAt *time.Time     `gorm:"comment:最近成功时间"`
	LastAttemptAt *time.Time     `gorm:"comment:最近尝试时间"`
	LastError     *string        `gorm:"type:text;comment:最近错误信息"`
	StatsJSON     datatypes.JSON `gorm:"comment:本轮统计JSON"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
