package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"debate_arena/internal/service"
)

// 客戶端送入的訊框類型
const (
	frameJoin  = "join"
	frameLeave = "leave"
	frameSend  = "send"
	frameRead  = "read"
)

// inboundFrame 是客戶端透過 WebSocket 送入的指令
type inboundFrame struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	Content     string `json:"content"`
	ClientMsgID string `json:"client_msg_id"`
}

const frameTimeout = 10 * time.Second

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsManager   *service.WebSocketManager
	roomService *service.RoomService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例，allowedOrigins 為空時不檢查 origin
func NewWebSocketHandler(wsManager *service.WebSocketManager, roomService *service.RoomService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:   wsManager,
		roomService: roomService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket 處理 WebSocket 連接請求，路徑帶有房間 ID 時連線後自動加入
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	// 升級前先檢查權限，升級後就無法回傳 HTTP 錯誤
	roomID := c.Param("id")
	if roomID != "" {
		if _, err := h.roomService.GetRoom(c.Request.Context(), caller, roomID); err != nil {
			respondError(c, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.wsManager.NewClient(conn, caller.UserID, caller.Role)
	if roomID != "" {
		h.join(client, roomID)
	}

	h.wsManager.Serve(client, func(client *service.Client, data []byte) {
		h.handleFrame(client, caller, data)
	})
}

// handleFrame 依訊框類型分派，錯誤以 error 事件回給發送者
func (h *WebSocketHandler) handleFrame(client *service.Client, caller service.Caller, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		sendError(client, "invalid_request", "無法解析的訊框")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	roomID := frame.RoomID
	if roomID == "" {
		roomID = h.wsManager.RoomOf(client)
	}

	var err error
	switch frame.Type {
	case frameJoin:
		if _, err = h.roomService.GetRoom(ctx, caller, frame.RoomID); err == nil {
			h.join(client, frame.RoomID)
		}
	case frameLeave:
		if prev := h.wsManager.RoomOf(client); prev != "" {
			h.wsManager.LeaveRoom(client)
			h.wsManager.BroadcastSystemMessage(prev, service.PresenceLeft)
		}
	case frameSend:
		if roomID == "" {
			sendError(client, "invalid_request", "尚未加入房間")
			return
		}
		// 訊息本身會經由房間廣播回到發送者
		_, err = h.roomService.SendMessage(ctx, caller, roomID, frame.Content, frame.ClientMsgID)
	case frameRead:
		if roomID == "" {
			sendError(client, "invalid_request", "尚未加入房間")
			return
		}
		_, err = h.roomService.MarkRead(ctx, caller, roomID)
	default:
		sendError(client, "invalid_request", "未知的訊框類型")
		return
	}

	if err != nil {
		e := lookupError(err)
		if e.status == http.StatusInternalServerError {
			log.Error().Err(err).Str("frame", frame.Type).Msg("websocket frame failed")
		}
		sendError(client, e.code, e.message)
	}
}

// join 切換到新房間並向新舊房間廣播在線人數
func (h *WebSocketHandler) join(client *service.Client, roomID string) {
	prev := h.wsManager.RoomOf(client)
	h.wsManager.JoinRoom(client, roomID)
	if prev != "" && prev != roomID {
		h.wsManager.BroadcastSystemMessage(prev, service.PresenceLeft)
	}
	h.wsManager.BroadcastSystemMessage(roomID, service.PresenceJoined)
}

func sendError(client *service.Client, code, message string) {
	client.Send(&service.Event{
		Type:      service.EventError,
		Code:      code,
		Content:   message,
		Timestamp: time.Now().UTC(),
	})
}
