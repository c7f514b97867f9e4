package models

import (
	"time"
)

// Flag 表示參與者檢舉某則訊息犯了特定謬誤，同一用戶對同一訊息只能檢舉一次
type Flag struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID string    `gorm:"type:uuid;not null;uniqueIndex:ux_flags_message_user,priority:1" json:"message_id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:ux_flags_message_user,priority:2" json:"user_id"`
	Fallacy   string    `gorm:"type:varchar(32);not null" json:"fallacy"`
	CreatedAt time.Time `json:"created_at"`
}

// Fallacies 為可檢舉的謬誤類型
var Fallacies = map[string]bool{
	"ad_hominem":           true,
	"straw_man":            true,
	"false_dilemma":        true,
	"slippery_slope":       true,
	"appeal_to_emotion":    true,
	"appeal_to_authority":  true,
	"whataboutism":         true,
	"hasty_generalization": true,
	"circular_reasoning":   true,
	"red_herring":          true,
}
