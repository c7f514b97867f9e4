// Package memory 提供 repository 介面的記憶體實作，用於本機開發與測試。
//
// 每個房間有自己的互斥鎖，WithLock 在鎖內操作房間的副本，fn 成功後才一次寫回，
// 行為與 PostgreSQL 的列鎖交易一致。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"debate_arena/internal/models"
	"debate_arena/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*models.Room
	messages map[string]*models.Message
	flags    map[flagKey]*models.Flag
	opinions map[string]models.Opinion
	topics   map[string]models.Topic
	profiles map[string]models.Profile

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type flagKey struct {
	messageID string
	userID    string
}

func New() *Store {
	return &Store{
		rooms:    make(map[string]*models.Room),
		messages: make(map[string]*models.Message),
		flags:    make(map[flagKey]*models.Flag),
		opinions: make(map[string]models.Opinion),
		topics:   make(map[string]models.Topic),
		profiles: make(map[string]models.Profile),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Repositories 將 Store 包裝成各個 repository 介面
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Room:    &roomRepo{s},
		Message: &messageRepo{s},
		Flag:    &flagRepo{s},
		Opinion: &opinionRepo{s},
		Topic:   &topicRepo{s},
		Profile: &profileRepo{s},
	}
}

func (s *Store) AddOpinion(o models.Opinion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opinions[o.ID] = o
}

func (s *Store) AddTopic(t models.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t.ID] = t
}

func (s *Store) AddProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// PutRoom 直接寫入房間狀態，略過狀態機
func (s *Store) PutRoom(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room.Clone()
}

func (s *Store) lockFor(roomID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roomID] = l
	}
	return l
}

type roomRepo struct{ s *Store }

func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[room.ID]; ok {
		return repository.ErrDuplicate
	}
	// 與 ux_rooms_active_pair 相同：同一議題同一對用戶只能有一個進行中的房間
	if room.Status == models.RoomStatusActive {
		for _, existing := range r.s.rooms {
			if existing.Status == models.RoomStatusActive && existing.TopicID == room.TopicID &&
				existing.IsParticipant(room.ParticipantA) && existing.IsParticipant(room.ParticipantB) {
				return repository.ErrDuplicate
			}
		}
	}
	now := time.Now().UTC()
	room.CreatedAt, room.UpdatedAt = now, now
	r.s.rooms[room.ID] = room.Clone()
	return nil
}

func (r *roomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return room.Clone(), nil
}

func (r *roomRepo) FindActiveBetween(ctx context.Context, topicID, userA, userB string) (*models.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, room := range r.s.rooms {
		if room.TopicID != topicID || room.Status != models.RoomStatusActive {
			continue
		}
		if room.IsParticipant(userA) && room.IsParticipant(userB) {
			return room.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *roomRepo) FindByParticipant(ctx context.Context, userID string) ([]models.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var rooms []models.Room
	for _, room := range r.s.rooms {
		if room.IsParticipant(userID) {
			rooms = append(rooms, *room.Clone())
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastMessageAt.After(rooms[j].LastMessageAt)
	})
	return rooms, nil
}

func (r *roomRepo) WithLock(ctx context.Context, id string, fn func(room *models.Room, tx repository.RoomTx) error) error {
	l := r.s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.RLock()
	current, ok := r.s.rooms[id]
	r.s.mu.RUnlock()
	if !ok {
		return repository.ErrNotFound
	}

	tx := &roomTx{s: r.s}
	if err := fn(current.Clone(), tx); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, msg := range tx.messages {
		r.s.messages[msg.ID] = msg
	}
	if tx.saved != nil {
		r.s.rooms[id] = tx.saved
	}
	return nil
}

func (r *roomRepo) FindArchivable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var candidates []*models.Room
	for _, room := range r.s.rooms {
		if room.Status == models.RoomStatusEnded && room.LastMessageAt.Before(cutoff) {
			candidates = append(candidates, room)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastMessageAt.Before(candidates[j].LastMessageAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]string, 0, len(candidates))
	for _, room := range candidates {
		ids = append(ids, room.ID)
	}
	return ids, nil
}

func (r *roomRepo) Archive(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	l := r.s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[id]
	if !ok || room.Status != models.RoomStatusEnded || !room.LastMessageAt.Before(cutoff) {
		return false, nil
	}
	room.Status = models.RoomStatusArchived
	room.Version++
	return true, nil
}

type roomTx struct {
	s        *Store
	saved    *models.Room
	messages []*models.Message
}

func (t *roomTx) SaveRoom(room *models.Room) error {
	room.Version++
	room.UpdatedAt = time.Now().UTC()
	t.saved = room.Clone()
	return nil
}

func (t *roomTx) CreateMessage(msg *models.Message) error {
	if msg.ClientMsgID != nil {
		if _, err := t.FindMessageByClientID(msg.RoomID, msg.AuthorID, *msg.ClientMsgID); err == nil {
			return repository.ErrDuplicate
		}
	}
	if msg.Status == "" {
		msg.Status = models.ModerationApproved
	}
	c := *msg
	t.messages = append(t.messages, &c)
	return nil
}

func (t *roomTx) FindMessageByClientID(roomID, authorID, clientMsgID string) (*models.Message, error) {
	match := func(m *models.Message) bool {
		return m.RoomID == roomID && m.AuthorID == authorID && m.ClientMsgID != nil && *m.ClientMsgID == clientMsgID
	}
	for _, m := range t.messages {
		if match(m) {
			c := *m
			return &c, nil
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, m := range t.s.messages {
		if match(m) {
			c := *m
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}
