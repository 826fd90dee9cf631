package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logutil.NewNopLogger())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	first := readEvent(t, conn)
	require.Equal(t, EventConnected, first.Type)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishStoreChange(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	hub.PublishStoreChange("chat", map[string]any{"isProcessing": true})

	event := readEvent(t, conn)
	assert.Equal(t, EventStoreChanged, event.Type)
	assert.Equal(t, "chat", event.Store)
	assert.Equal(t, map[string]any{"isProcessing": true}, event.Data)
	assert.False(t, event.Timestamp.IsZero())
}

func TestHub_PublishCleanupReachesFilteredClients(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "?stores=ui")
	waitForClients(t, hub, 1)

	hub.PublishCleanup("manual", store.CleanupResult{DeletedConversations: 2})

	event := readEvent(t, conn)
	assert.Equal(t, EventCleanupCompleted, event.Type)
	data, ok := event.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "manual", data["trigger"])
	assert.EqualValues(t, 2, data["result"].(map[string]any)["deletedConversations"])
}

func TestHub_StoreFilter(t *testing.T) {
	hub, server := startHub(t)
	uiOnly := dial(t, server, "?stores=ui")
	all := dial(t, server, "")
	waitForClients(t, hub, 2)

	hub.PublishStoreChange("chat", "chat-state")
	hub.PublishStoreChange("ui", "ui-state")

	event := readEvent(t, uiOnly)
	assert.Equal(t, "ui", event.Store, "filtered client skips other stores")

	assert.Equal(t, "chat", readEvent(t, all).Store)
	assert.Equal(t, "ui", readEvent(t, all).Store)
}

func TestHub_PingAndSubscribe(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, EventPong, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "stores": []string{"config"}}))
	assert.Equal(t, EventSubscribed, readEvent(t, conn).Type)

	hub.PublishStoreChange("chat", "skipped")
	hub.PublishStoreChange("config", "kept")
	assert.Equal(t, "config", readEvent(t, conn).Store)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	conn.Close()

	waitForClients(t, hub, 0)
	assert.Equal(t, 0, hub.GetStats()["total_connections"])
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	hub := NewHub(logutil.NewNopLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			hub.Broadcast(Event{Type: EventStoreChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full queue")
	}
}
