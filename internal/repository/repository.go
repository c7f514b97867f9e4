package repository

import (
	"context"
	"errors"
	"time"

	"debate_arena/internal/models"
	"debate_arena/internal/storage"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type Repositories struct {
	Room    RoomRepository
	Message MessageRepository
	Flag    FlagRepository
	Opinion OpinionRepository
	Topic   TopicRepository
	Profile ProfileRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		Room:    NewRoomRepository(db),
		Message: NewMessageRepository(db),
		Flag:    NewFlagRepository(db),
		Opinion: NewOpinionRepository(db),
		Topic:   NewTopicRepository(db),
		Profile: NewProfileRepository(db),
	}
}

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id string) (*models.Room, error)
	// FindActiveBetween 查詢同一議題、同一對參與者仍在進行中的房間
	FindActiveBetween(ctx context.Context, topicID, userA, userB string) (*models.Room, error)
	FindByParticipant(ctx context.Context, userID string) ([]models.Room, error)
	// WithLock 鎖定單一房間，在同一個交易中讀取最新狀態並執行 fn。
	// fn 回傳錯誤時整個交易回滾。
	WithLock(ctx context.Context, id string, fn func(room *models.Room, tx RoomTx) error) error
	// FindArchivable 回傳已結束且最後訊息早於 cutoff 的房間 ID
	FindArchivable(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// Archive 以單一條件更新封存房間，房間已不符合條件時回傳 false
	Archive(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// RoomTx 是 WithLock 交易內可用的寫入操作
type RoomTx interface {
	SaveRoom(room *models.Room) error
	CreateMessage(msg *models.Message) error
	FindMessageByClientID(roomID, authorID, clientMsgID string) (*models.Message, error)
}

// MessageQuery 描述分頁查詢條件
type MessageQuery struct {
	RoomID string
	After  *time.Time
	Limit  int
	// ViewerID 可看到自己被隱藏的訊息，IncludeWithheld 則可看到全部
	ViewerID        string
	IncludeWithheld bool
}

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, q MessageQuery) ([]models.Message, error)
	// CountUnread 計算 since 之後由其他人發出的已核准訊息數，since 為 nil 時計算全部
	CountUnread(ctx context.Context, roomID, userID string, since *time.Time) (int64, error)
	Last(ctx context.Context, roomID string) (*models.Message, error)
	UpdateStatus(ctx context.Context, id string, status models.ModerationStatus) error
}

type FlagRepository interface {
	Create(ctx context.Context, flag *models.Flag) error
	// CountByMessages 回傳 messageID -> 謬誤類型 -> 次數
	CountByMessages(ctx context.Context, messageIDs []string) (map[string]map[string]int, error)
}

type OpinionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Opinion, error)
	FindByAuthorAndTopic(ctx context.Context, authorID, topicID string) (*models.Opinion, error)
}

type TopicRepository interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Topic, error)
}

type ProfileRepository interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Profile, error)
}
