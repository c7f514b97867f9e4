package repository

import (
	"context"

	"gorm.io/gorm"

	"debate_arena/internal/models"
	"debate_arena/internal/storage"
)

// 意見、議題與個人檔案由其他服務維護，這裡只提供唯讀查詢

type opinionRepository struct {
	baseRepository
}

func NewOpinionRepository(db *storage.PostgresDB) OpinionRepository {
	return &opinionRepository{baseRepository{db: db}}
}

func (r *opinionRepository) FindByID(ctx context.Context, id string) (*models.Opinion, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var opinion models.Opinion
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.First(&opinion, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &opinion, nil
}

// FindByAuthorAndTopic 回傳作者在該議題上最新的意見
func (r *opinionRepository) FindByAuthorAndTopic(ctx context.Context, authorID, topicID string) (*models.Opinion, error) {
	var opinion models.Opinion
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.
			Where("author_id = ? AND topic_id = ?", authorID, topicID).
			Order("created_at DESC").
			First(&opinion).Error
	})
	if err != nil {
		return nil, err
	}
	return &opinion, nil
}

type topicRepository struct {
	baseRepository
}

func NewTopicRepository(db *storage.PostgresDB) TopicRepository {
	return &topicRepository{baseRepository{db: db}}
}

func (r *topicRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.Topic, error) {
	result := make(map[string]models.Topic, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var topics []models.Topic
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.Where("id IN ?", ids).Find(&topics).Error
	})
	if err != nil {
		return nil, err
	}
	for _, t := range topics {
		result[t.ID] = t
	}
	return result, nil
}

type profileRepository struct {
	baseRepository
}

func NewProfileRepository(db *storage.PostgresDB) ProfileRepository {
	return &profileRepository{baseRepository{db: db}}
}

func (r *profileRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	result := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var profiles []models.Profile
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.Where("user_id IN ?", ids).Find(&profiles).Error
	})
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.UserID] = p
	}
	return result, nil
}
