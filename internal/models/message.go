package models

import (
	"time"
)

// Message is one ingested conversation message. The natural key is
// (tenant, channel, provider timestamp); re-ingesting the same key is
// a no-op because message bodies are immutable at the provider.
type Message struct {
	TenantID      string    `gorm:"primaryKey;type:text;comment:租户ID"`
	ChannelID     string    `gorm:"primaryKey;type:text;comment:频道ID"`
	TS            string    `gorm:"primaryKey;type:text;comment:消息时间戳(原始)"`
	ChannelName   string    `gorm:"type:text;comment:频道名称"`
	UserID        string    `gorm:"type:text;comment:发送者ID"`
	Text          string    `gorm:"type:text;comment:消息内容"`
	IsDM          bool      `gorm:"not null;default:false;comment:是否私聊"`
	ThreadTS      *string   `gorm:"type:text;comment:所属线程时间戳"`
	IsThreadReply bool      `gorm:"not null;default:false;comment:是否线程回复"`
	EventAt       time.Time `gorm:"index;not null;comment:消息时间"`
	StoredAt      time.Time `gorm:"autoCreateTime;comment:入库时间"`
}

func (Message) TableName() string {
	return "messages"
}
