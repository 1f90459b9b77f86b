package models

import (
	"time"
)

type User struct {
	ID       string `gorm:"primaryKey;type:text"`
	TenantID string `gorm:"type:text;not null;index"`
	Email    string `gorm:"type:text;not null;uniqueIndex"`
	Name     string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
