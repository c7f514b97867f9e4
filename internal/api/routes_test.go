package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate_arena/internal/api"
	"debate_arena/internal/models"
	"debate_arena/internal/repository/memory"
	"debate_arena/internal/service"
	"debate_arena/internal/utils"
	"debate_arena/pkg/config"
)

const (
	author     = "11111111-1111-1111-1111-111111111111"
	challenger = "22222222-2222-2222-2222-222222222222"
	outsider   = "33333333-3333-3333-3333-333333333333"
	mod        = "44444444-4444-4444-4444-444444444444"
)

type testServer struct {
	router *gin.Engine
	tokens *utils.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	store.AddTopic(models.Topic{ID: "t1", Title: "Nuclear power"})
	store.AddOpinion(models.Opinion{ID: "op-author", AuthorID: author, TopicID: "t1", Stance: "supporting"})
	store.AddOpinion(models.Opinion{ID: "op-challenger", AuthorID: challenger, TopicID: "t1", Stance: "opposing"})

	cfg := &config.Config{
		Debate:    config.DebateConfig{TurnsPerParticipant: 1, MaxMessageLength: 200},
		Sweeper:   config.SweeperConfig{Interval: time.Hour, InactivityThreshold: 720 * time.Hour, BatchSize: 10},
		WebSocket: config.WebSocketConfig{SendBuffer: 16},
	}
	services := service.NewServices(store.Repositories(), cfg, zerolog.Nop())
	t.Cleanup(services.Debouncer.Stop)

	tokens := utils.NewTokenManager("test-secret", time.Hour)
	r := gin.New()
	api.SetupRoutes(r, services, tokens, nil)
	return &testServer{router: r, tokens: tokens}
}

func (s *testServer) do(t *testing.T, userID string, role models.UserRole, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.tokens.GenerateToken(userID, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (s *testServer) createRoom(t *testing.T) string {
	t.Helper()
	w := s.do(t, challenger, models.RoleUser, http.MethodPost, "/api/rooms", `{"opinion_id":"op-author"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room models.Room
	decode(t, w, &room)
	return room.ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "", "", http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "", "", http.MethodPost, "/api/rooms", `{"opinion_id":"op-author"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDebateFlow(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)
	base := "/api/rooms/" + roomID

	w := s.do(t, challenger, models.RoleUser, http.MethodPost, base+"/messages", `{"content":"first!"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"尚未輪到您發言","code":"not_your_turn"}`, w.Body.String())

	w = s.do(t, author, models.RoleUser, http.MethodPost, base+"/messages", `{"content":"opening","client_msg_id":"a-1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, challenger, models.RoleUser, http.MethodPost, base+"/messages", `{"content":"rebuttal"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, author, models.RoleUser, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	var room models.Room
	decode(t, w, &room)
	assert.Equal(t, models.PhaseVoting, room.Phase)

	w = s.do(t, author, models.RoleUser, http.MethodPost, base+"/votes", `{"continue":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var vote struct {
		Outcome string `json:"outcome"`
	}
	decode(t, w, &vote)
	assert.Equal(t, "pending", vote.Outcome)

	w = s.do(t, challenger, models.RoleUser, http.MethodPost, base+"/votes", `{"continue":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &vote)
	assert.Equal(t, "ended", vote.Outcome)

	w = s.do(t, author, models.RoleUser, http.MethodPost, base+"/messages", `{"content":"wait"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "room_inactive")

	w = s.do(t, author, models.RoleUser, http.MethodGet, base+"/messages?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Messages []models.MessageWithFlags `json:"messages"`
	}
	decode(t, w, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "opening", page.Messages[0].Content)
}

func TestPermissionErrorsAreUniform(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)

	w := s.do(t, author, models.RoleUser, http.MethodPut, "/api/rooms/"+roomID+"/privacy", `{"private":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	private := s.do(t, outsider, models.RoleUser, http.MethodGet, "/api/rooms/"+roomID, "")
	missing := s.do(t, outsider, models.RoleUser, http.MethodGet, "/api/rooms/does-not-exist", "")
	assert.Equal(t, http.StatusForbidden, private.Code)
	assert.Equal(t, private.Code, missing.Code)
	assert.Equal(t, private.Body.String(), missing.Body.String())

	w = s.do(t, mod, models.RoleModerator, http.MethodGet, "/api/rooms/"+roomID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)

	testCases := []struct {
		description  string
		userID       string
		method       string
		path         string
		body         string
		expectedCode int
		expectedKind string
	}{
		{"self debate", author, http.MethodPost, "/api/rooms", `{"opinion_id":"op-author"}`, http.StatusUnprocessableEntity, "self_debate"},
		{"no opinion", outsider, http.MethodPost, "/api/rooms", `{"opinion_id":"op-author"}`, http.StatusUnprocessableEntity, "missing_prerequisite"},
		{"missing body field", challenger, http.MethodPost, "/api/rooms", `{}`, http.StatusBadRequest, "invalid_request"},
		{"bad cursor", author, http.MethodGet, "/api/rooms/" + roomID + "/messages?after=yesterday", "", http.StatusBadRequest, "invalid_request"},
		{"vote outside voting", author, http.MethodPost, "/api/rooms/" + roomID + "/votes", `{"continue":true}`, http.StatusConflict, "not_voting_phase"},
		{"vote missing field", author, http.MethodPost, "/api/rooms/" + roomID + "/votes", `{}`, http.StatusBadRequest, "invalid_request"},
		{"operator only", author, http.MethodPost, "/api/rooms/" + roomID + "/voting", "", http.StatusForbidden, "not_permitted"},
		{"other user's rooms", outsider, http.MethodGet, "/api/users/" + author + "/rooms", "", http.StatusForbidden, "not_permitted"},
		{"unknown fallacy", challenger, http.MethodPost, "/api/messages/nope/flags", `{"fallacy":"vibes"}`, http.StatusBadRequest, "invalid_request"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			w := s.do(t, tc.userID, models.RoleUser, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.expectedCode, w.Code, w.Body.String())
			var body struct {
				Code string `json:"code"`
			}
			decode(t, w, &body)
			assert.Equal(t, tc.expectedKind, body.Code)
		})
	}
}

func TestStartVoting_AlreadyVoting(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)
	path := "/api/rooms/" + roomID + "/voting"

	w := s.do(t, mod, models.RoleModerator, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, mod, models.RoleModerator, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"房間目前的階段無法切換","code":"invalid_phase"}`, w.Body.String())
}

func TestFlagsAndModeration(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)

	w := s.do(t, author, models.RoleUser, http.MethodPost, "/api/rooms/"+roomID+"/messages", `{"content":"you are wrong"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var msg models.Message
	decode(t, w, &msg)

	flagPath := "/api/messages/" + msg.ID + "/flags"
	w = s.do(t, challenger, models.RoleUser, http.MethodPost, flagPath, `{"fallacy":"ad_hominem"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, challenger, models.RoleUser, http.MethodPost, flagPath, `{"fallacy":"ad_hominem"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, author, models.RoleUser, http.MethodPost, flagPath, `{"fallacy":"ad_hominem"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	modPath := "/api/messages/" + msg.ID + "/moderation"
	w = s.do(t, challenger, models.RoleUser, http.MethodPut, modPath, `{"status":"withheld"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, mod, models.RoleModerator, http.MethodPut, modPath, `{"status":"withheld"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, challenger, models.RoleUser, http.MethodGet, "/api/users/"+challenger+"/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Rooms []service.RoomSummary `json:"rooms"`
	}
	decode(t, w, &list)
	require.Len(t, list.Rooms, 1)
	assert.Zero(t, list.Rooms[0].UnreadCount)
	assert.Equal(t, "Nuclear power", list.Rooms[0].Topic.Title)
}

func TestWebSocketFrames(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token, err := s.tokens.GenerateToken(author, models.RoleUser)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/" + roomID + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e service.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, service.EventSystem, e.Type)
	assert.Equal(t, service.PresenceJoined, e.Content)
	assert.Equal(t, 1, e.Online)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "content": "over the wire"}))

	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, service.EventMessage, e.Type)
	require.NotNil(t, e.Message)
	assert.Equal(t, "over the wire", e.Message.Content)

	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, service.EventRoomState, e.Type)

	// 第二次發言不是自己的回合
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "content": "again"}))
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, service.EventError, e.Type)
	assert.Equal(t, "not_your_turn", e.Code)
}

func TestWebSocketRejectsPrivateRoomBeforeUpgrade(t *testing.T) {
	s := newTestServer(t)
	roomID := s.createRoom(t)
	w := s.do(t, challenger, models.RoleUser, http.MethodPut, "/api/rooms/"+roomID+"/privacy", `{"private":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, outsider, models.RoleUser, http.MethodGet, "/api/rooms/"+roomID+"/ws", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
