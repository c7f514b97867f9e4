package memory

import (
	"context"
	"sort"
	"time"

	"debate_arena/internal/models"
	"debate_arena/internal/repository"
)

type messageRepo struct{ s *Store }

func (r *messageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msg, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *msg
	return &c, nil
}

// roomMessages 回傳依建立時間排序的房間訊息，呼叫者需持有讀鎖
func (r *messageRepo) roomMessages(roomID string) []models.Message {
	var out []models.Message
	for _, m := range r.s.messages {
		if m.RoomID == roomID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *messageRepo) List(ctx context.Context, q repository.MessageQuery) ([]models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.Message
	for _, m := range r.roomMessages(q.RoomID) {
		if q.After != nil && !m.CreatedAt.After(*q.After) {
			continue
		}
		if !q.IncludeWithheld && m.Status != models.ModerationApproved && m.AuthorID != q.ViewerID {
			continue
		}
		out = append(out, m)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (r *messageRepo) CountUnread(ctx context.Context, roomID, userID string, since *time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var count int64
	for _, m := range r.s.messages {
		if m.RoomID != roomID || m.AuthorID == userID || m.Status != models.ModerationApproved {
			continue
		}
		if since != nil && !m.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *messageRepo) Last(ctx context.Context, roomID string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	messages := r.roomMessages(roomID)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Status == models.ModerationApproved {
			return &messages[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *messageRepo) UpdateStatus(ctx context.Context, id string, status models.ModerationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	msg.Status = status
	return nil
}

type flagRepo struct{ s *Store }

func (r *flagRepo) Create(ctx context.Context, flag *models.Flag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := flagKey{messageID: flag.MessageID, userID: flag.UserID}
	if _, ok := r.s.flags[key]; ok {
		return repository.ErrDuplicate
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now().UTC()
	}
	c := *flag
	r.s.flags[key] = &c
	return nil
}

func (r *flagRepo) CountByMessages(ctx context.Context, messageIDs []string) (map[string]map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	counts := make(map[string]map[string]int)
	for _, f := range r.s.flags {
		if !wanted[f.MessageID] {
			continue
		}
		if counts[f.MessageID] == nil {
			counts[f.MessageID] = make(map[string]int)
		}
		counts[f.MessageID][f.Fallacy]++
	}
	return counts, nil
}

type opinionRepo struct{ s *Store }

func (r *opinionRepo) FindByID(ctx context.Context, id string) (*models.Opinion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.opinions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *opinionRepo) FindByAuthorAndTopic(ctx context.Context, authorID, topicID string) (*models.Opinion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *models.Opinion
	for _, o := range r.s.opinions {
		if o.AuthorID != authorID || o.TopicID != topicID {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			c := o
			latest = &c
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

type topicRepo struct{ s *Store }

func (r *topicRepo) FindByIDs(ctx context.Context, ids []string) (map[string]models.Topic, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]models.Topic, len(ids))
	for _, id := range ids {
		if t, ok := r.s.topics[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

type profileRepo struct{ s *Store }

func (r *profileRepo) FindByIDs(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]models.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
