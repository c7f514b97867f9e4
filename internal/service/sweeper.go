package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"debate_arena/internal/repository"
)

// Sweeper 定期將長時間無訊息的已結束房間封存
type Sweeper struct {
	rooms     repository.RoomRepository
	broadcast Broadcaster
	interval  time.Duration
	threshold time.Duration
	batchSize int
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSweeper(rooms repository.RoomRepository, broadcast Broadcaster, interval, threshold time.Duration, batchSize int, now func() time.Time, logger zerolog.Logger) *Sweeper {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		rooms:     rooms,
		broadcast: broadcast,
		interval:  interval,
		threshold: threshold,
		batchSize: batchSize,
		now:       now,
		logger:    logger,
	}
}

// Run 啟動時先掃描一次，之後每個 interval 掃描，直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if n, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("sweep failed")
		} else if n > 0 {
			s.logger.Info().Int("archived", n).Msg("sweep finished")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce 執行一次完整掃描並回傳封存的房間數。
// 單一房間失敗只記錄並略過，重複執行不會重複封存。
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.threshold)
	archived := 0
	skipped := make(map[string]bool)

	for {
		// 已失敗的房間仍符合條件，查詢時多取同樣數量
		limit := s.batchSize + len(skipped)
		ids, err := s.rooms.FindArchivable(ctx, cutoff, limit)
		if err != nil {
			return archived, err
		}

		progressed := false
		for _, id := range ids {
			if skipped[id] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return archived, err
			}

			ok, err := s.rooms.Archive(ctx, id, cutoff)
			if err != nil {
				s.logger.Warn().Err(err).Str("room_id", id).Msg("archive room failed")
				skipped[id] = true
				continue
			}
			progressed = true
			if !ok {
				continue
			}
			archived++
			s.announce(ctx, id)
		}

		// 不足一批代表已沒有候選房間
		if !progressed || len(ids) < limit {
			return archived, nil
		}
	}
}

func (s *Sweeper) announce(ctx context.Context, roomID string) {
	if s.broadcast == nil {
		return
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		s.logger.Debug().Err(err).Str("room_id", roomID).Msg("archived room reload failed")
		return
	}
	s.broadcast.BroadcastTo(roomID, &Event{Type: EventRoomState, RoomID: roomID, Room: room, Timestamp: s.now()}, viewersOf(room))
}
