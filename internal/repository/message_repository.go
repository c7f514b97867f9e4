package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"debate_arena/internal/models"
	"debate_arena/internal/storage"
)

type messageRepository struct {
	baseRepository
}

func NewMessageRepository(db *storage.PostgresDB) MessageRepository {
	return &messageRepository{baseRepository{db: db}}
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var msg models.Message
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.First(&msg, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// List 依建立時間由舊到新回傳訊息
func (r *messageRepository) List(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	var messages []models.Message
	err := r.read(ctx, func(db *gorm.DB) error {
		query := db.Where("room_id = ?", q.RoomID)
		if q.After != nil {
			query = query.Where("created_at > ?", *q.After)
		}
		if !q.IncludeWithheld {
			query = query.Where("status = ? OR author_id = ?", models.ModerationApproved, q.ViewerID)
		}
		if q.Limit > 0 {
			query = query.Limit(q.Limit)
		}
		return query.Order("created_at ASC, id ASC").Find(&messages).Error
	})
	return messages, err
}

func (r *messageRepository) CountUnread(ctx context.Context, roomID, userID string, since *time.Time) (int64, error) {
	var count int64
	err := r.read(ctx, func(db *gorm.DB) error {
		query := db.Model(&models.Message{}).
			Where("room_id = ? AND author_id <> ? AND status = ?", roomID, userID, models.ModerationApproved)
		if since != nil {
			query = query.Where("created_at > ?", *since)
		}
		return query.Count(&count).Error
	})
	return count, err
}

func (r *messageRepository) Last(ctx context.Context, roomID string) (*models.Message, error) {
	var msg models.Message
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.
			Where("room_id = ? AND status = ?", roomID, models.ModerationApproved).
			Order("created_at DESC, id DESC").
			First(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) UpdateStatus(ctx context.Context, id string, status models.ModerationStatus) error {
	if !validID(id) {
		return ErrNotFound
	}
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Message{}).Where("id = ?", id).Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
