package service

import (
	"github.com/rs/zerolog"

	"debate_arena/internal/repository"
	"debate_arena/pkg/config"
)

type Services struct {
	RoomService      *RoomService
	WebSocketManager *WebSocketManager
	Sweeper          *Sweeper
	Debouncer        *Debouncer
}

func NewServices(repos *repository.Repositories, cfg *config.Config, logger zerolog.Logger) *Services {
	wsManager := NewWebSocketManager(cfg.WebSocket.SendBuffer, cfg.WebSocket.RatePerSecond, cfg.WebSocket.Burst, logger.With().Str("component", "websocket").Logger())

	var notifier Notifier = NewLogNotifier(logger.With().Str("component", "notifier").Logger())
	if cfg.Notify.WebhookURL != "" {
		notifier = NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}
	debouncer := NewDebouncer(cfg.Notify.Debounce)

	roomService := NewRoomService(repos, wsManager, notifier, debouncer, RoomOptions{
		TurnsPerParticipant: cfg.Debate.TurnsPerParticipant,
		MaxMessageLength:    cfg.Debate.MaxMessageLength,
	}, logger.With().Str("component", "rooms").Logger())

	sweeper := NewSweeper(repos.Room, wsManager, cfg.Sweeper.Interval, cfg.Sweeper.InactivityThreshold, cfg.Sweeper.BatchSize, nil, logger.With().Str("component", "sweeper").Logger())

	return &Services{
		RoomService:      roomService,
		WebSocketManager: wsManager,
		Sweeper:          sweeper,
		Debouncer:        debouncer,
	}
}
