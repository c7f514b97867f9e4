package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"debate_arena/internal/engine"
	"debate_arena/internal/models"
	"debate_arena/internal/repository"
)

// Caller 是經過驗證的呼叫者
type Caller struct {
	UserID string
	Role   models.UserRole
}

// RoomOptions 為辯論房間的行為設定
type RoomOptions struct {
	// TurnsPerParticipant 為每方結構化發言次數，達到後自動進入投票，0 表示停用
	TurnsPerParticipant int
	MaxMessageLength    int
	Now                 func() time.Time
	NewID               func() string
}

type RoomService struct {
	repos     *repository.Repositories
	broadcast Broadcaster
	notifier  Notifier
	debouncer *Debouncer
	opts      RoomOptions
	logger    zerolog.Logger
}

func NewRoomService(repos *repository.Repositories, broadcast Broadcaster, notifier Notifier, debouncer *Debouncer, opts RoomOptions, logger zerolog.Logger) *RoomService {
	if opts.Now == nil {
		opts.Now = func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 4000
	}
	return &RoomService{
		repos:     repos,
		broadcast: broadcast,
		notifier:  notifier,
		debouncer: debouncer,
		opts:      opts,
		logger:    logger,
	}
}

// RoomSummary 是房間列表使用的摘要
type RoomSummary struct {
	Room        *models.Room    `json:"room"`
	Counterpart Participant     `json:"counterpart"`
	Topic       models.Topic    `json:"topic"`
	UnreadCount int64           `json:"unread_count"`
	LastMessage *models.Message `json:"last_message,omitempty"`
	IsPrivate   bool            `json:"is_private"`
}

type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// CreateRoom 由呼叫者對某則意見發起辯論，意見作者成為 A 方並先發言
func (s *RoomService) CreateRoom(ctx context.Context, caller Caller, opinionID string) (*models.Room, error) {
	opinion, err := s.repos.Opinion.FindByID(ctx, opinionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find opinion: %w", err)
	}
	if opinion.AuthorID == caller.UserID {
		return nil, ErrSelfDebate
	}

	own, err := s.repos.Opinion.FindByAuthorAndTopic(ctx, caller.UserID, opinion.TopicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMissingPrerequisite
		}
		return nil, fmt.Errorf("find own opinion: %w", err)
	}

	existing, err := s.repos.Room.FindActiveBetween(ctx, opinion.TopicID, opinion.AuthorID, caller.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find active room: %w", err)
	}

	room := engine.NewRoom(s.opts.NewID(), opinion.TopicID, opinion.AuthorID, opinion.Stance, caller.UserID, own.Stance, s.opts.Now())
	room.PoliticalDistance = s.politicalDistance(ctx, opinion.AuthorID, caller.UserID)

	if err := s.repos.Room.Create(ctx, room); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create room: %w", err)
		}
		// 同時建立時由唯一索引擋下，回傳先建立的房間
		existing, err := s.repos.Room.FindActiveBetween(ctx, opinion.TopicID, opinion.AuthorID, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("find active room after conflict: %w", err)
		}
		return existing, nil
	}

	s.logger.Info().Str("room_id", room.ID).Str("topic_id", room.TopicID).Msg("room created")
	s.dispatch(Notification{Kind: NotifyRoomCreated, RoomID: room.ID, Recipient: room.ParticipantA, ActorID: caller.UserID})
	return room, nil
}

// politicalDistance 計算雙方政治分數的歐氏距離，任何分數缺失時為 0
func (s *RoomService) politicalDistance(ctx context.Context, a, b string) float64 {
	profiles, err := s.repos.Profile.FindByIDs(ctx, []string{a, b})
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile lookup failed, distance defaults to zero")
		return 0
	}
	pa, okA := profiles[a]
	pb, okB := profiles[b]
	if !okA || !okB || pa.Economic == nil || pa.Authoritarian == nil || pb.Economic == nil || pb.Authoritarian == nil {
		return 0
	}
	de := *pa.Economic - *pb.Economic
	da := *pa.Authoritarian - *pb.Authoritarian
	return math.Sqrt(de*de + da*da)
}

// SendMessage 在房間鎖內驗證發言權、寫入訊息並推進回合，提交後才推送。
// clientMsgID 重複時直接回傳先前的訊息，不改變房間狀態。
func (s *RoomService) SendMessage(ctx context.Context, caller Caller, roomID, content, clientMsgID string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > s.opts.MaxMessageLength {
		return nil, ErrInvalidContent
	}

	var (
		msg          *models.Message
		room         *models.Room
		duplicate    bool
		phaseChanged bool
	)
	err := s.repos.Room.WithLock(ctx, roomID, func(r *models.Room, tx repository.RoomTx) error {
		if !r.IsParticipant(caller.UserID) {
			return ErrNotParticipant
		}
		if clientMsgID != "" {
			existing, err := tx.FindMessageByClientID(r.ID, caller.UserID, clientMsgID)
			if err == nil {
				msg, duplicate = existing, true
				return nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		now := s.opts.Now()
		// 同一房間內的訊息時間必須嚴格遞增
		if !now.After(r.LastMessageAt) {
			now = r.LastMessageAt.Add(time.Microsecond)
		}
		if err := engine.ApplyMessage(r, caller.UserID, now); err != nil {
			return err
		}
		if engine.TurnLimitReached(r, s.opts.TurnsPerParticipant) {
			if err := engine.StartVoting(r); err != nil {
				return err
			}
			phaseChanged = true
		}

		m := &models.Message{
			ID:        s.opts.NewID(),
			RoomID:    r.ID,
			AuthorID:  caller.UserID,
			Content:   content,
			Status:    models.ModerationApproved,
			CreatedAt: now,
		}
		if clientMsgID != "" {
			m.ClientMsgID = &clientMsgID
		}
		if err := tx.CreateMessage(m); err != nil {
			return err
		}
		if err := tx.SaveRoom(r); err != nil {
			return err
		}
		msg, room = m, r
		return nil
	})
	if err != nil {
		return nil, s.participantError(err)
	}
	if duplicate {
		return msg, nil
	}

	s.broadcast.BroadcastTo(room.ID, &Event{Type: EventMessage, RoomID: room.ID, Message: msg, Timestamp: msg.CreatedAt}, viewersOf(room))
	s.broadcastState(room)

	recipient := room.Counterpart(caller.UserID)
	s.debouncer.Trigger(room.ID+":"+recipient, func() {
		s.dispatch(Notification{Kind: NotifyNewMessage, RoomID: room.ID, Recipient: recipient, ActorID: caller.UserID})
	})
	if phaseChanged {
		s.notifyBoth(room, NotifyPhaseChanged, string(room.Phase))
	}
	return msg, nil
}

// CastContinueVote 記錄呼叫者的繼續/結束投票，雙方到齊時在同一交易中結算
func (s *RoomService) CastContinueVote(ctx context.Context, caller Caller, roomID string, proceed bool) (*models.Room, engine.Outcome, error) {
	var outcome engine.Outcome
	room, err := s.mutate(ctx, caller, roomID, func(r *models.Room) error {
		var err error
		outcome, err = engine.CastVote(r, caller.UserID, proceed, s.opts.Now())
		return err
	})
	if err != nil {
		return nil, engine.OutcomePending, err
	}

	switch outcome {
	case engine.OutcomeFreeForm:
		s.notifyBoth(room, NotifyPhaseChanged, string(room.Phase))
	case engine.OutcomeEnded:
		s.notifyBoth(room, NotifyRoomEnded, string(room.EndReason))
	}
	return room, outcome, nil
}

// StartVoting 由版主或管理員直接將房間切換到投票階段
func (s *RoomService) StartVoting(ctx context.Context, caller Caller, roomID string) (*models.Room, error) {
	if !caller.Role.Elevated() {
		return nil, ErrNotPermitted
	}
	room, err := s.mutate(ctx, caller, roomID, engine.StartVoting)
	if err != nil {
		return nil, err
	}
	s.notifyBoth(room, NotifyPhaseChanged, string(room.Phase))
	return room, nil
}

// TogglePrivacy 只設定呼叫者自己的私密旗標，房間變為私密時移除無權讀取的訂閱者
func (s *RoomService) TogglePrivacy(ctx context.Context, caller Caller, roomID string, private bool) (*models.Room, error) {
	room, err := s.mutate(ctx, caller, roomID, func(r *models.Room) error {
		return engine.SetPrivacy(r, caller.UserID, private)
	})
	if err != nil {
		return nil, err
	}
	if room.IsPrivate() {
		s.broadcast.Evict(room.ID, viewersOf(room))
	}
	return room, nil
}

// EndRoom 由任一參與者單方面結束房間
func (s *RoomService) EndRoom(ctx context.Context, caller Caller, roomID string) (*models.Room, error) {
	room, err := s.mutate(ctx, caller, roomID, func(r *models.Room) error {
		return engine.End(r, caller.UserID, s.opts.Now())
	})
	if err != nil {
		return nil, err
	}
	s.notifyBoth(room, NotifyRoomEnded, string(room.EndReason))
	return room, nil
}

// MarkRead 更新呼叫者的最後閱讀時間，只用於計算未讀數
func (s *RoomService) MarkRead(ctx context.Context, caller Caller, roomID string) (*models.Room, error) {
	return s.mutate(ctx, caller, roomID, func(r *models.Room) error {
		return engine.MarkRead(r, caller.UserID, s.opts.Now())
	})
}

// mutate 在房間鎖內套用狀態變更並寫回，提交後推送房間狀態
func (s *RoomService) mutate(ctx context.Context, caller Caller, roomID string, apply func(r *models.Room) error) (*models.Room, error) {
	var room *models.Room
	err := s.repos.Room.WithLock(ctx, roomID, func(r *models.Room, tx repository.RoomTx) error {
		// 版主可觸發投票，但不能代替參與者寫入欄位
		if !r.IsParticipant(caller.UserID) && !caller.Role.Elevated() {
			return ErrNotParticipant
		}
		if err := apply(r); err != nil {
			return err
		}
		if err := tx.SaveRoom(r); err != nil {
			return err
		}
		room = r
		return nil
	})
	if err != nil {
		return nil, s.participantError(err)
	}
	s.broadcastState(room)
	return room, nil
}

// participantError 將不存在的房間也回報為無權限，避免洩漏私密房間是否存在
func (s *RoomService) participantError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotParticipant
	}
	return err
}

func (s *RoomService) broadcastState(room *models.Room) {
	s.broadcast.BroadcastTo(room.ID, &Event{Type: EventRoomState, RoomID: room.ID, Room: room, Timestamp: s.opts.Now()}, viewersOf(room))
}

// viewersOf 以提交後的房間快照判斷訂閱者是否仍可讀取
func viewersOf(room *models.Room) func(Caller) bool {
	return func(viewer Caller) bool {
		return CanView(room, viewer)
	}
}

// FlagMessage 檢舉對手訊息的謬誤，同一用戶對同一訊息只能檢舉一次
func (s *RoomService) FlagMessage(ctx context.Context, caller Caller, messageID, fallacy string) (*models.Flag, error) {
	if !models.Fallacies[fallacy] {
		return nil, ErrInvalidFallacy
	}

	msg, err := s.repos.Message.FindByID(ctx, messageID)
	if err != nil {
		return nil, s.participantError(err)
	}
	room, err := s.repos.Room.FindByID(ctx, msg.RoomID)
	if err != nil {
		return nil, s.participantError(err)
	}
	if !room.IsParticipant(caller.UserID) {
		return nil, ErrNotParticipant
	}
	if msg.AuthorID == caller.UserID {
		return nil, ErrOwnMessage
	}

	flag := &models.Flag{
		ID:        s.opts.NewID(),
		MessageID: msg.ID,
		UserID:    caller.UserID,
		Fallacy:   fallacy,
		CreatedAt: s.opts.Now(),
	}
	if err := s.repos.Flag.Create(ctx, flag); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateFlag
		}
		return nil, fmt.Errorf("create flag: %w", err)
	}
	return flag, nil
}

// GetRoomsForUser 回傳 userID 參與的房間摘要，只有本人或版主以上可查詢
func (s *RoomService) GetRoomsForUser(ctx context.Context, caller Caller, userID string) ([]RoomSummary, error) {
	if caller.UserID != userID && !caller.Role.Elevated() {
		return nil, ErrNotPermitted
	}

	rooms, err := s.repos.Room.FindByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find rooms: %w", err)
	}

	topicIDs := make([]string, 0, len(rooms))
	userIDs := make([]string, 0, len(rooms))
	for i := range rooms {
		topicIDs = append(topicIDs, rooms[i].TopicID)
		userIDs = append(userIDs, rooms[i].Counterpart(userID))
	}
	topics, err := s.repos.Topic.FindByIDs(ctx, topicIDs)
	if err != nil {
		return nil, fmt.Errorf("find topics: %w", err)
	}
	profiles, err := s.repos.Profile.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		counterpart := room.Counterpart(userID)

		unread, err := s.repos.Message.CountUnread(ctx, room.ID, userID, room.LastReadOf(userID))
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
		last, err := s.repos.Message.Last(ctx, room.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("last message: %w", err)
		}

		topic, ok := topics[room.TopicID]
		if !ok {
			topic = models.Topic{ID: room.TopicID}
		}
		summaries = append(summaries, RoomSummary{
			Room:        room,
			Counterpart: Participant{UserID: counterpart, DisplayName: profiles[counterpart].DisplayName},
			Topic:       topic,
			UnreadCount: unread,
			LastMessage: last,
			IsPrivate:   room.IsPrivate(),
		})
	}
	return summaries, nil
}

// GetRoom 參與者、版主，或房間公開時任何人都可讀取
func (s *RoomService) GetRoom(ctx context.Context, caller Caller, roomID string) (*models.Room, error) {
	return s.viewableRoom(ctx, caller, roomID)
}

// CanView 判斷呼叫者是否可以讀取或訂閱房間
func CanView(room *models.Room, caller Caller) bool {
	return room.IsParticipant(caller.UserID) || caller.Role.Elevated() || !room.IsPrivate()
}

func (s *RoomService) viewableRoom(ctx context.Context, caller Caller, roomID string) (*models.Room, error) {
	room, err := s.repos.Room.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if caller.Role.Elevated() {
				return nil, ErrNotFound
			}
			return nil, ErrNotParticipant
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	if !CanView(room, caller) {
		return nil, ErrNotParticipant
	}
	return room, nil
}

// GetMessages 依建立時間分頁回傳訊息，附帶每則訊息的謬誤檢舉統計
func (s *RoomService) GetMessages(ctx context.Context, caller Caller, roomID string, after *time.Time, limit int) ([]models.MessageWithFlags, error) {
	if _, err := s.viewableRoom(ctx, caller, roomID); err != nil {
		return nil, err
	}

	messages, err := s.repos.Message.List(ctx, repository.MessageQuery{
		RoomID:          roomID,
		After:           after,
		Limit:           limit,
		ViewerID:        caller.UserID,
		IncludeWithheld: caller.Role.Elevated(),
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	counts, err := s.repos.Flag.CountByMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count flags: %w", err)
	}

	out := make([]models.MessageWithFlags, 0, len(messages))
	for _, m := range messages {
		flags := counts[m.ID]
		if flags == nil {
			flags = map[string]int{}
		}
		out = append(out, models.MessageWithFlags{Message: m, FlagCounts: flags})
	}
	return out, nil
}

// ModerateMessage 由版主設定訊息的審核狀態
func (s *RoomService) ModerateMessage(ctx context.Context, caller Caller, messageID string, status models.ModerationStatus) (*models.Message, error) {
	if !caller.Role.Elevated() {
		return nil, ErrNotPermitted
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	if err := s.repos.Message.UpdateStatus(ctx, messageID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update message status: %w", err)
	}
	msg, err := s.repos.Message.FindByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}

	room, err := s.repos.Room.FindByID(ctx, msg.RoomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("moderated message room lookup failed")
		return msg, nil
	}
	s.broadcastModeration(room, msg)
	return msg, nil
}

// broadcastModeration 被隱藏的訊息只有作者與版主收到原文，其他訂閱者只收到狀態
func (s *RoomService) broadcastModeration(room *models.Room, msg *models.Message) {
	now := s.opts.Now()
	canView := viewersOf(room)
	if msg.Status != models.ModerationWithheld {
		s.broadcast.BroadcastTo(room.ID, &Event{Type: EventMessageModerated, RoomID: room.ID, Message: msg, Timestamp: now}, canView)
		return
	}

	seesContent := func(viewer Caller) bool {
		return viewer.UserID == msg.AuthorID || viewer.Role.Elevated()
	}
	stripped := &models.Message{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		AuthorID:  msg.AuthorID,
		Status:    msg.Status,
		CreatedAt: msg.CreatedAt,
	}
	s.broadcast.BroadcastTo(room.ID, &Event{Type: EventMessageModerated, RoomID: room.ID, Message: msg, Timestamp: now}, func(viewer Caller) bool {
		return canView(viewer) && seesContent(viewer)
	})
	s.broadcast.BroadcastTo(room.ID, &Event{Type: EventMessageModerated, RoomID: room.ID, Message: stripped, Timestamp: now}, func(viewer Caller) bool {
		return canView(viewer) && !seesContent(viewer)
	})
}

func (s *RoomService) notifyBoth(room *models.Room, kind, detail string) {
	for _, recipient := range []string{room.ParticipantA, room.ParticipantB} {
		s.dispatch(Notification{Kind: kind, RoomID: room.ID, Recipient: recipient, Detail: detail})
	}
}

// dispatch 非同步送出通知，失敗只記錄
func (s *RoomService) dispatch(n Notification) {
	if s.notifier == nil {
		return
	}
	n.At = s.opts.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn().Err(err).Str("kind", n.Kind).Str("room_id", n.RoomID).Msg("notification failed")
		}
	}()
}
