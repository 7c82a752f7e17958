package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"        //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	"nhooyr.io/websocket/wsjson" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/simple-memory/internal/notify"
	"github.com/scrypster/simple-memory/web/handlers"
)

func TestWebSocketHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub([]string{"localhost:*"}, nil)
	defer hub.Stop()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocketHub_Broadcast(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	hub.Register(&handlers.MockClient{SendChan: received})
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(notify.NewEvent(notify.SessionCreated, "s1", ""))

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), `"type":"event"`)
		assert.Contains(t, string(msg), `"session.created"`)
		assert.Contains(t, string(msg), `"s1"`)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast message")
	}
}

func TestWebSocketHub_SlowClientIsDropped(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	// Unbuffered and never read: the first broadcast cannot be delivered.
	hub.Register(&handlers.MockClient{SendChan: make(chan []byte)})
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(handlers.Message{Type: "event"})
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketHub_EndToEnd(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	bus := notify.NewBus()
	bus.Subscribe(hub.Publish)

	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	sent := notify.NewEvent(notify.MemoryAdded, "s1", "m1")
	bus.Publish(sent)

	var msg handlers.Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg)) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, sent.ID, msg.Event.ID)
	assert.Equal(t, notify.MemoryAdded, msg.Event.Type)
	assert.Equal(t, "m1", msg.Event.MemoryID)
}
