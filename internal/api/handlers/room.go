package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"debate_arena/internal/models"
	"debate_arena/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RoomHandler 處理與辯論房間相關的請求
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// CreateRoom 處理以意見發起辯論的請求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input struct {
		OpinionID string `json:"opinion_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), caller, input.OpinionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

// GetRoom 處理獲取房間訊息的請求
func (h *RoomHandler) GetRoom(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// GetMessages 以 after 游標與 limit 分頁取得訊息
func (h *RoomHandler) GetMessages(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var after *time.Time
	if raw := c.Query("after"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "after 必須是 RFC3339 時間")
			return
		}
		after = &t
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit 必須是正整數")
			return
		}
		limit = min(n, maxPageSize)
	}

	messages, err := h.roomService.GetMessages(c.Request.Context(), caller, c.Param("id"), after, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage 處理發送辯論訊息，Idempotency-Key 標頭與 client_msg_id 等效
func (h *RoomHandler) SendMessage(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input struct {
		Content     string `json:"content" binding:"required"`
		ClientMsgID string `json:"client_msg_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	if input.ClientMsgID == "" {
		input.ClientMsgID = c.GetHeader("Idempotency-Key")
	}

	msg, err := h.roomService.SendMessage(c.Request.Context(), caller, c.Param("id"), input.Content, input.ClientMsgID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// CastVote 處理投票階段的繼續/結束投票
func (h *RoomHandler) CastVote(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input struct {
		Continue *bool `json:"continue" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, outcome, err := h.roomService.CastContinueVote(c.Request.Context(), caller, c.Param("id"), *input.Continue)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "outcome": outcome.String()})
}

// StartVoting 由版主將房間切換到投票階段
func (h *RoomHandler) StartVoting(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	room, err := h.roomService.StartVoting(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// SetPrivacy 設定呼叫者自己的私密旗標
func (h *RoomHandler) SetPrivacy(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input struct {
		Private *bool `json:"private" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, err := h.roomService.TogglePrivacy(c.Request.Context(), caller, c.Param("id"), *input.Private)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// EndRoom 處理結束辯論的請求
func (h *RoomHandler) EndRoom(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	room, err := h.roomService.EndRoom(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) MarkRead(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	if _, err := h.roomService.MarkRead(c.Request.Context(), caller, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListUserRooms 取得用戶參與的房間摘要
func (h *RoomHandler) ListUserRooms(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	rooms, err := h.roomService.GetRoomsForUser(c.Request.Context(), caller, c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// FlagMessage 檢舉訊息中的謬誤
func (h *RoomHandler) FlagMessage(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input struct {
		Fallacy string `json:"fallacy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	flag, err := h.roomService.FlagMessage(c.Request.Context(), caller, c.Param("id"), input.Fallacy)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flag)
}

// ModerateMessage 由版主設定訊息審核狀態
func (h *RoomHandler) ModerateMessage(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input struct {
		Status models.ModerationStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.roomService.ModerateMessage(c.Request.Context(), caller, c.Param("id"), input.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}
