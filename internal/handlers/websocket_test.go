package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
)

func dial(t *testing.T, server *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if session != "" {
		wsURL += "?session=" + session
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connected", hello.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketFiltersBySession(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	watcher := dial(t, server, "s1")
	everything := dial(t, server, "")
	require.Equal(t, 2, handler.ClientCount())

	handler.Publish(interfaces.Event{Type: interfaces.EventAnswerReady, SessionID: "s2"})
	handler.Publish(interfaces.Event{
		Type:      interfaces.EventAnnotationReady,
		SessionID: "s1",
		Payload:   map[string]string{"outcome": "annotated"},
	})

	// The s2 event is skipped for the s1 watcher
	msg := read(t, watcher)
	assert.Equal(t, string(interfaces.EventAnnotationReady), msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "annotated", payload["outcome"])

	assert.Equal(t, "s2", read(t, everything).SessionID)
	assert.Equal(t, "s1", read(t, everything).SessionID)
}

func TestWebSocketDisconnect(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server, "s1")
	require.Equal(t, 1, handler.ClientCount())
	conn.Close()

	assert.Eventually(t, func() bool { return handler.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// Publishing with no clients is a no-op
	handler.Publish(interfaces.Event{Type: interfaces.EventSessionReset, SessionID: "s1"})
}
