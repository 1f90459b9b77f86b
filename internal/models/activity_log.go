package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is the append-only, tenant-visible audit trail. Rows are
// written by the engine after successful runs and never mutated.
type ActivityLog struct {
	ID          string         `gorm:"primaryKey;type:text"`
	TenantID    string         `gorm:"type:text;not null;index"`
	Type        string         `gorm:"type:varchar(50);not null;index"`
	Description string         `gorm:"type:text"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (ActivityLog) TableName() string {
	return "activity_log"
}
