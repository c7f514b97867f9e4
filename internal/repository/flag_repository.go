package repository

import (
	"context"

	"gorm.io/gorm"

	"debate_arena/internal/models"
	"debate_arena/internal/storage"
)

type flagRepository struct {
	baseRepository
}

func NewFlagRepository(db *storage.PostgresDB) FlagRepository {
	return &flagRepository{baseRepository{db: db}}
}

// Create 依賴 (message_id, user_id) 唯一索引，重複檢舉回傳 ErrDuplicate
func (r *flagRepository) Create(ctx context.Context, flag *models.Flag) error {
	return r.write(ctx, func(db *gorm.DB) error {
		return db.Create(flag).Error
	})
}

func (r *flagRepository) CountByMessages(ctx context.Context, messageIDs []string) (map[string]map[string]int, error) {
	counts := make(map[string]map[string]int)
	if len(messageIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		MessageID string
		Fallacy   string
		Count     int
	}
	err := r.read(ctx, func(db *gorm.DB) error {
		rows = rows[:0]
		return db.Model(&models.Flag{}).
			Select("message_id, fallacy, COUNT(*) AS count").
			Where("message_id IN ?", messageIDs).
			Group("message_id, fallacy").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if counts[row.MessageID] == nil {
			counts[row.MessageID] = make(map[string]int)
		}
		counts[row.MessageID][row.Fallacy] = row.Count
	}
	return counts, nil
}
