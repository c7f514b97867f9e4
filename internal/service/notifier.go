package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notification 是送往推播服務的站外通知
type Notification struct {
	Kind      string    `json:"kind"`
	RoomID    string    `json:"room_id"`
	Recipient string    `json:"recipient"`
	ActorID   string    `json:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

const (
	NotifyRoomCreated  = "room_created"
	NotifyNewMessage   = "new_message"
	NotifyPhaseChanged = "phase_changed"
	NotifyRoomEnded    = "room_ended"
)

// Notifier 為推播服務的介面，失敗不影響主要操作
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier 只記錄通知，未設定 webhook 時使用
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.Debug().
		Str("kind", notification.Kind).
		Str("room_id", notification.RoomID).
		Str("recipient", notification.Recipient).
		Msg("notification")
	return nil
}

// WebhookNotifier 以 HTTP POST 將通知送到推播服務
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return nil
}
