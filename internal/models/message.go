package models

import (
	"time"
)

// Message 表示房間內的一則辯論發言，隨房間刪除而一併刪除
type Message struct {
	ID          string           `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID      string           `gorm:"type:uuid;not null;index:idx_messages_room_created,priority:1;uniqueIndex:ux_messages_client_id,priority:1" json:"room_id"`
	AuthorID    string           `gorm:"type:uuid;not null;uniqueIndex:ux_messages_client_id,priority:2" json:"author_id"`
	Content     string           `gorm:"type:text;not null" json:"content"`
	Status      ModerationStatus `gorm:"type:varchar(16);not null;default:approved" json:"status"`
	ClientMsgID *string          `gorm:"type:varchar(64);uniqueIndex:ux_messages_client_id,priority:3" json:"client_msg_id,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_messages_room_created,priority:2" json:"created_at"`
}

// ModerationStatus 定義訊息的審核狀態
type ModerationStatus string

const (
	ModerationApproved ModerationStatus = "approved"
	ModerationWithheld ModerationStatus = "withheld"
)

// Valid 判斷審核狀態是否合法
func (s ModerationStatus) Valid() bool {
	return s == ModerationApproved || s == ModerationWithheld
}

// MessageWithFlags 是附帶謬誤檢舉統計的訊息
type MessageWithFlags struct {
	Message
	FlagCounts map[string]int `json:"flag_counts"`
}
