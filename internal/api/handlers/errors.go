package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"debate_arena/internal/models"
	"debate_arena/internal/service"
)

type apiError struct {
	status  int
	code    string
	message string
}

// 非參與者與房間不存在回傳相同內容，不洩漏私密房間
var errorTable = []struct {
	err error
	apiError
}{
	{service.ErrNotParticipant, apiError{http.StatusForbidden, "not_permitted", "您無權存取此房間"}},
	{service.ErrNotPermitted, apiError{http.StatusForbidden, "not_permitted", "您無權執行此操作"}},
	{service.ErrRoomInactive, apiError{http.StatusConflict, "room_inactive", "房間已結束"}},
	{service.ErrTurnViolation, apiError{http.StatusConflict, "not_your_turn", "尚未輪到您發言"}},
	{service.ErrNotVotingPhase, apiError{http.StatusConflict, "not_voting_phase", "房間目前不在投票階段"}},
	{service.ErrInvalidPhase, apiError{http.StatusConflict, "invalid_phase", "房間目前的階段無法切換"}},
	{service.ErrSelfDebate, apiError{http.StatusUnprocessableEntity, "self_debate", "不能與自己的意見辯論"}},
	{service.ErrMissingPrerequisite, apiError{http.StatusUnprocessableEntity, "missing_prerequisite", "請先對此議題發表意見"}},
	{service.ErrDuplicateFlag, apiError{http.StatusConflict, "duplicate_flag", "您已檢舉過此訊息"}},
	{service.ErrOwnMessage, apiError{http.StatusUnprocessableEntity, "own_message", "不能檢舉自己的訊息"}},
	{service.ErrInvalidFallacy, apiError{http.StatusBadRequest, "invalid_request", "未知的謬誤類型"}},
	{service.ErrInvalidContent, apiError{http.StatusBadRequest, "invalid_request", "訊息內容為空或過長"}},
	{service.ErrInvalidStatus, apiError{http.StatusBadRequest, "invalid_request", "未知的審核狀態"}},
	{service.ErrNotFound, apiError{http.StatusNotFound, "not_found", "找不到資源"}},
}

func lookupError(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.apiError
		}
	}
	return apiError{http.StatusInternalServerError, "internal", "伺服器內部錯誤"}
}

// respondError 將服務層錯誤轉為統一的 JSON 回應
func respondError(c *gin.Context, err error) {
	e := lookupError(err)
	if e.status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(e.status, gin.H{"error": e.message, "code": e.code})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "invalid_request"})
}

// callerFrom 讀取 AuthMiddleware 設定的用戶資訊
func callerFrom(c *gin.Context) (service.Caller, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": "unauthorized"})
		return service.Caller{}, false
	}
	role, _ := c.Get("userRole")
	r, _ := role.(models.UserRole)
	if r == "" {
		r = models.RoleUser
	}
	return service.Caller{UserID: userID, Role: r}, true
}
