package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier(t *testing.T) {
	received := make(chan Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var n Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received <- n
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second)
	err := notifier.Notify(context.Background(), Notification{Kind: NotifyRoomEnded, RoomID: "r1", Recipient: userX})
	require.NoError(t, err)

	n := <-received
	assert.Equal(t, NotifyRoomEnded, n.Kind)
	assert.Equal(t, userX, n.Recipient)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), Notification{Kind: NotifyNewMessage})
	assert.ErrorContains(t, err, "503")
}

func TestDebouncer_CoalescesPerKey(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var a, b atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger("room-1:x", func() { a.Add(1) })
	}
	d.Trigger("room-2:x", func() { b.Add(1) })
	assert.Equal(t, 2, d.Pending())

	assert.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, d.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), a.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired atomic.Int32
	d.Trigger("k", func() { fired.Add(1) })
	d.Stop()
	d.Trigger("k", func() { fired.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
