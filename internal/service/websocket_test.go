package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate_arena/internal/models"
)

func readEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Outbound():
		var e Event
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("no event queued")
		return Event{}
	}
}

func TestWebSocketManager_JoinLeave(t *testing.T) {
	m := NewWebSocketManager(8, 0, 0, zerolog.Nop())
	c := m.NewClient(nil, userX, models.RoleUser)

	m.JoinRoom(c, "r1")
	assert.Equal(t, 1, m.RoomClients("r1"))
	assert.Equal(t, "r1", m.RoomOf(c))

	m.JoinRoom(c, "r2")
	assert.Equal(t, 0, m.RoomClients("r1"))
	assert.Equal(t, 1, m.RoomClients("r2"))

	m.LeaveRoom(c)
	assert.Equal(t, 0, m.RoomClients("r2"))
	assert.Empty(t, m.RoomOf(c))

	// 重複離開不應出錯
	m.LeaveRoom(c)
}

func TestWebSocketManager_BroadcastIncludesSender(t *testing.T) {
	m := NewWebSocketManager(8, 0, 0, zerolog.Nop())
	sender := m.NewClient(nil, userX, models.RoleUser)
	peer := m.NewClient(nil, userY, models.RoleUser)
	other := m.NewClient(nil, userZ, models.RoleUser)
	m.JoinRoom(sender, "r1")
	m.JoinRoom(peer, "r1")
	m.JoinRoom(other, "r2")

	m.BroadcastToRoom("r1", &Event{Type: EventMessage, RoomID: "r1", Message: &models.Message{ID: "m1", Content: "hi"}})

	for _, c := range []*Client{sender, peer} {
		e := readEvent(t, c)
		assert.Equal(t, EventMessage, e.Type)
		require.NotNil(t, e.Message)
		assert.Equal(t, "m1", e.Message.ID)
	}
	assert.Empty(t, other.Outbound())
}

func TestWebSocketManager_SlowClientDropped(t *testing.T) {
	m := NewWebSocketManager(1, 0, 0, zerolog.Nop())
	slow := m.NewClient(nil, userX, models.RoleUser)
	m.JoinRoom(slow, "r1")

	fast := m.NewClient(nil, userY, models.RoleUser)
	m.JoinRoom(fast, "r1")

	m.BroadcastSystemMessage("r1", "first")
	readEvent(t, fast)
	m.BroadcastSystemMessage("r1", "second")

	assert.Equal(t, 1, m.RoomClients("r1"))
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client should be closed")
	}

	e := readEvent(t, fast)
	assert.Equal(t, "second", e.Content)
	assert.False(t, slow.Send(&Event{Type: EventSystem}))
}

func TestWebSocketManager_Serve(t *testing.T) {
	m := NewWebSocketManager(8, 0, 0, zerolog.Nop())
	frames := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := m.NewClient(conn, userX, models.RoleUser)
		m.JoinRoom(client, "r1")
		m.Serve(client, func(c *Client, frame []byte) {
			frames <- string(frame)
			c.Send(&Event{Type: EventSystem, Content: "ack"})
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, `{"type":"ping"}`, <-frames)

	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "ack", e.Content)

	conn.Close()
	assert.Eventually(t, func() bool { return m.RoomClients("r1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketManager_RateLimit(t *testing.T) {
	m := NewWebSocketManager(8, 0.001, 1, zerolog.Nop())
	handled := make(chan struct{}, 4)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.Serve(m.NewClient(conn, userX, models.RoleUser), func(*Client, []byte) {
			handled <- struct{}{}
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("a")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("b")))

	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, EventError, e.Type)
	assert.Equal(t, "rate_limited", e.Code)
	assert.Len(t, handled, 1)
}

func TestWebSocketManager_BroadcastToFilters(t *testing.T) {
	m := NewWebSocketManager(8, 0, 0, zerolog.Nop())
	x := m.NewClient(nil, userX, models.RoleUser)
	z := m.NewClient(nil, userZ, models.RoleUser)
	m.JoinRoom(x, "r1")
	m.JoinRoom(z, "r1")

	m.BroadcastTo("r1", &Event{Type: EventRoomState, RoomID: "r1"}, func(v Caller) bool {
		return v.UserID == userX
	})

	assert.Equal(t, EventRoomState, readEvent(t, x).Type)
	assert.Empty(t, z.Outbound())
}

func TestWebSocketManager_Evict(t *testing.T) {
	m := NewWebSocketManager(8, 0, 0, zerolog.Nop())
	keep := m.NewClient(nil, userX, models.RoleUser)
	gone := m.NewClient(nil, userZ, models.RoleUser)
	m.JoinRoom(keep, "r1")
	m.JoinRoom(gone, "r1")

	m.Evict("r1", func(v Caller) bool { return v.UserID != userZ })

	e := readEvent(t, gone)
	assert.Equal(t, EventSystem, e.Type)
	assert.Equal(t, NoticePrivate, e.Content)
	assert.Empty(t, m.RoomOf(gone))
	select {
	case <-gone.Done():
		t.Fatal("evicted client should stay connected")
	default:
	}

	e = readEvent(t, keep)
	assert.Equal(t, PresenceLeft, e.Content)
	assert.Equal(t, 1, e.Online)

	// 沒有人被移出時不廣播
	m.Evict("r1", func(Caller) bool { return true })
	assert.Empty(t, keep.Outbound())
}

func TestWebSocketManager_DisconnectAnnouncesPresence(t *testing.T) {
	m := NewWebSocketManager(8, 0, 0, zerolog.Nop())
	stay := m.NewClient(nil, userY, models.RoleUser)
	m.JoinRoom(stay, "r1")

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := m.NewClient(conn, userX, models.RoleUser)
		m.JoinRoom(client, "r1")
		m.Serve(client, func(*Client, []byte) {})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return m.RoomClients("r1") == 2 }, time.Second, 10*time.Millisecond)
	conn.Close()

	e := readEvent(t, stay)
	assert.Equal(t, EventSystem, e.Type)
	assert.Equal(t, PresenceLeft, e.Content)
	assert.Equal(t, 1, e.Online)
}
