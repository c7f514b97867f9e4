package models

import "time"

// Opinion 是意見服務維護的立場發言唯讀視圖
type Opinion struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	AuthorID  string    `gorm:"type:uuid;not null;index:idx_opinions_author_topic,priority:1" json:"author_id"`
	TopicID   string    `gorm:"type:uuid;not null;index:idx_opinions_author_topic,priority:2" json:"topic_id"`
	Stance    string    `gorm:"type:varchar(32);not null" json:"stance"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic 是議題的唯讀視圖
type Topic struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
}
