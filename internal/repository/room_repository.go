package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"debate_arena/internal/models"
	"debate_arena/internal/storage"
)

type roomRepository struct {
	baseRepository
}

func NewRoomRepository(db *storage.PostgresDB) RoomRepository {
	return &roomRepository{baseRepository{db: db}}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.write(ctx, func(db *gorm.DB) error {
		return db.Create(room).Error
	})
}

func (r *roomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var room models.Room
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.First(&room, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) FindActiveBetween(ctx context.Context, topicID, userA, userB string) (*models.Room, error) {
	var room models.Room
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.
			Where("topic_id = ? AND status = ?", topicID, models.RoomStatusActive).
			Where("(participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?)", userA, userB, userB, userA).
			First(&room).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByParticipant 依最後訊息時間排序，最新的在前
func (r *roomRepository) FindByParticipant(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.
			Where("participant_a = ? OR participant_b = ?", userID, userID).
			Order("last_message_at DESC").
			Find(&rooms).Error
	})
	return rooms, err
}

func (r *roomRepository) WithLock(ctx context.Context, id string, fn func(room *models.Room, tx RoomTx) error) error {
	if !validID(id) {
		return ErrNotFound
	}
	return r.write(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var room models.Room
			// SELECT ... FOR UPDATE，只鎖定這一列
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", id).Error; err != nil {
				return err
			}
			return fn(&room, &roomTx{tx: tx})
		})
	})
}

func (r *roomRepository) FindArchivable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.read(ctx, func(db *gorm.DB) error {
		return db.Model(&models.Room{}).
			Where("status = ? AND last_message_at < ?", models.RoomStatusEnded, cutoff).
			Order("last_message_at ASC").
			Limit(limit).
			Pluck("id", &ids).Error
	})
	return ids, err
}

func (r *roomRepository) Archive(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Room{}).
			Where("id = ? AND status = ? AND last_message_at < ?", id, models.RoomStatusEnded, cutoff).
			Updates(map[string]interface{}{
				"status":  models.RoomStatusArchived,
				"version": gorm.Expr("version + 1"),
			})
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

type roomTx struct {
	tx *gorm.DB
}

func (t *roomTx) SaveRoom(room *models.Room) error {
	room.Version++
	return translate(t.tx.Save(room).Error)
}

func (t *roomTx) CreateMessage(msg *models.Message) error {
	return translate(t.tx.Create(msg).Error)
}

func (t *roomTx) FindMessageByClientID(roomID, authorID, clientMsgID string) (*models.Message, error) {
	var msg models.Message
	err := t.tx.
		Where("room_id = ? AND author_id = ? AND client_msg_id = ?", roomID, authorID, clientMsgID).
		First(&msg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}
