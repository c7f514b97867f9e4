package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"debate_arena/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // 必須小於 pongWait
	maxMessageSize = 4096
)

// 推送事件類型
const (
	EventMessage          = "message"
	EventRoomState        = "room_state"
	EventMessageModerated = "message_moderated"
	EventSystem           = "system"
	EventError            = "error"
)

// 系統事件內容
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
	NoticePrivate  = "room_private"
)

// Event 是推送給 WebSocket 客戶端的事件。
// 推送只是提示，客戶端重新連線後應以 HTTP 重新取得完整歷史。
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Room      *models.Room    `json:"room,omitempty"`
	Content   string          `json:"content,omitempty"`
	Code      string          `json:"code,omitempty"`
	Online    int             `json:"online,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Broadcaster 將已提交的變更推送給房間訂閱者。
// allow 與 keep 以訂閱者的身分判斷，回傳 false 的訂閱者收不到事件或被移出房間。
type Broadcaster interface {
	BroadcastToRoom(roomID string, event *Event)
	BroadcastTo(roomID string, event *Event, allow func(viewer Caller) bool)
	Evict(roomID string, keep func(viewer Caller) bool)
}

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	Conn    *websocket.Conn // WebSocket 連接，測試中可為 nil
	UserID  string
	Role    models.UserRole
	send    chan []byte   // 消息發送通道，永不關閉
	done    chan struct{} // 連接關閉時關閉
	limiter *rate.Limiter // 限制客戶端送入的訊框頻率

	roomID    string // 由 WebSocketManager.clientsMux 保護
	closeOnce sync.Once
}

// Send 非阻塞地將事件放入發送隊列，隊列已滿時回傳 false
func (c *Client) Send(event *Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close 關閉連接，可重複呼叫
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Done 在連接關閉後被關閉
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Outbound 回傳待發送的資料通道，供測試讀取
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Viewer 回傳客戶端連線時驗證的身分
func (c *Client) Viewer() Caller {
	return Caller{UserID: c.UserID, Role: c.Role}
}

// WebSocketManager 管理所有的 WebSocket 連接，以房間為單位分組
type WebSocketManager struct {
	clients    map[string]map[*Client]struct{} // roomID -> clients
	clientsMux sync.RWMutex

	sendBuffer int
	rateLimit  rate.Limit
	burst      int
	logger     zerolog.Logger
}

func NewWebSocketManager(sendBuffer int, ratePerSecond float64, burst int, logger zerolog.Logger) *WebSocketManager {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &WebSocketManager{
		clients:    make(map[string]map[*Client]struct{}),
		sendBuffer: sendBuffer,
		rateLimit:  limit,
		burst:      burst,
		logger:     logger,
	}
}

// NewClient 為已驗證的連接建立客戶端，尚未加入任何房間
func (m *WebSocketManager) NewClient(conn *websocket.Conn, userID string, role models.UserRole) *Client {
	return &Client{
		Conn:    conn,
		UserID:  userID,
		Role:    role,
		send:    make(chan []byte, m.sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(m.rateLimit, m.burst),
	}
}

// JoinRoom 將客戶端加入房間，一個連接同時只能在一個房間，加入新房間會先離開舊房間
func (m *WebSocketManager) JoinRoom(client *Client, roomID string) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	m.removeLocked(client)
	if m.clients[roomID] == nil {
		m.clients[roomID] = make(map[*Client]struct{})
	}
	m.clients[roomID][client] = struct{}{}
	client.roomID = roomID
}

// LeaveRoom 將客戶端移出目前的房間
func (m *WebSocketManager) LeaveRoom(client *Client) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()
	m.removeLocked(client)
}

// RoomOf 回傳客戶端目前所在的房間
func (m *WebSocketManager) RoomOf(client *Client) string {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	return client.roomID
}

func (m *WebSocketManager) removeLocked(client *Client) {
	if client.roomID == "" {
		return
	}
	if clients, ok := m.clients[client.roomID]; ok {
		delete(clients, client)
		// 如果房間空了，刪除房間
		if len(clients) == 0 {
			delete(m.clients, client.roomID)
		}
	}
	client.roomID = ""
}

// BroadcastToRoom 向房間內所有客戶端廣播，發送者也會收到自己的訊息。
// 隊列已滿的客戶端會被斷線，不影響其他客戶端。
func (m *WebSocketManager) BroadcastToRoom(roomID string, event *Event) {
	m.BroadcastTo(roomID, event, nil)
}

// BroadcastTo 只向 allow 回傳 true 的客戶端廣播，allow 為 nil 時發給所有人
func (m *WebSocketManager) BroadcastTo(roomID string, event *Event, allow func(viewer Caller) bool) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error().Err(err).Str("room_id", roomID).Msg("event encoding error")
		return
	}

	for _, client := range m.roomSnapshot(roomID) {
		if allow != nil && !allow(client.Viewer()) {
			continue
		}
		if !client.enqueue(data) {
			m.logger.Warn().Str("room_id", roomID).Str("user_id", client.UserID).Msg("dropping slow websocket client")
			m.LeaveRoom(client)
			client.Close()
		}
	}
}

// Evict 將 keep 回傳 false 的客戶端移出房間並通知他們，連線本身保持開啟
func (m *WebSocketManager) Evict(roomID string, keep func(viewer Caller) bool) {
	var evicted []*Client
	m.clientsMux.Lock()
	for client := range m.clients[roomID] {
		if !keep(client.Viewer()) {
			m.removeLocked(client)
			evicted = append(evicted, client)
		}
	}
	m.clientsMux.Unlock()

	if len(evicted) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, client := range evicted {
		client.Send(&Event{Type: EventSystem, RoomID: roomID, Content: NoticePrivate, Timestamp: now})
	}
	m.logger.Debug().Str("room_id", roomID).Int("evicted", len(evicted)).Msg("websocket clients evicted")
	m.BroadcastSystemMessage(roomID, PresenceLeft)
}

func (m *WebSocketManager) roomSnapshot(roomID string) []*Client {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	targets := make([]*Client, 0, len(m.clients[roomID]))
	for client := range m.clients[roomID] {
		targets = append(targets, client)
	}
	return targets
}

// BroadcastSystemMessage 發送系統消息到指定房間，附帶目前在線人數
func (m *WebSocketManager) BroadcastSystemMessage(roomID string, content string) {
	m.BroadcastToRoom(roomID, &Event{
		Type:      EventSystem,
		RoomID:    roomID,
		Content:   content,
		Online:    m.RoomClients(roomID),
		Timestamp: time.Now().UTC(),
	})
}

// RoomClients 獲取指定房間的在線客戶端數量
func (m *WebSocketManager) RoomClients(roomID string) int {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	return len(m.clients[roomID])
}

// Serve 處理客戶端連接直到斷線，每個收到的訊框交給 onFrame 處理。
// 斷線時客戶端會被移出房間並通知其餘訂閱者，不回傳錯誤。
func (m *WebSocketManager) Serve(client *Client, onFrame func(client *Client, frame []byte)) {
	defer func() {
		roomID := m.RoomOf(client)
		m.LeaveRoom(client)
		client.Close()
		if roomID != "" {
			m.BroadcastSystemMessage(roomID, PresenceLeft)
		}
	}()

	go m.writePump(client)
	m.readPump(client, onFrame)
}

// readPump 持續監聽並處理從客戶端接收的消息
func (m *WebSocketManager) readPump(client *Client, onFrame func(client *Client, frame []byte)) {
	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug().Err(err).Str("user_id", client.UserID).Msg("websocket unexpected close")
			}
			return
		}

		if !client.limiter.Allow() {
			client.Send(&Event{Type: EventError, Code: "rate_limited", Content: "too many frames", Timestamp: time.Now().UTC()})
			continue
		}
		onFrame(client, frame)
	}
}

// writePump 處理向客戶端發送消息的邏輯
func (m *WebSocketManager) writePump(client *Client) {
	// 設置心跳檢查計時器
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case data := <-client.send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			// 發送心跳包
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			return
		}
	}
}
