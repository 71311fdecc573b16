package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the frame sent to clients
type WSMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// wsClient is one connection. An empty session receives every event.
type wsClient struct {
	conn    *websocket.Conn
	session string
	send    chan []byte
}

// WebSocketHandler pushes session events to connected clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	serverInstanceID string // Clients use this to detect a server restart
}

var _ interfaces.EventPublisher = (*WebSocketHandler)(nil)

func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket upgrades /ws?session=<id> and streams that session's events
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		conn:    conn,
		session: r.URL.Query().Get("session"),
		send:    make(chan []byte, sendBufferSize),
	}

	// Queued first so it precedes any event
	if data, err := json.Marshal(WSMessage{
		Type:      "connected",
		SessionID: client.session,
		Payload:   map[string]string{"server_instance_id": h.serverInstanceID},
	}); err == nil {
		client.send <- data
	}

	h.mu.Lock()
	h.clients[conn] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("session_id", client.session).
		Int("clients", total).
		Msg("WebSocket client connected")

	go h.writePump(client)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		close(client.send)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("remaining", remaining).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Publish queues the event for every client watching its session. A client
// whose buffer is full misses the event.
func (h *WebSocketHandler) Publish(event interfaces.Event) {
	data, err := json.Marshal(WSMessage{
		Type:      string(event.Type),
		SessionID: event.SessionID,
		Payload:   event.Payload,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.session != "" && client.session != event.SessionID {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn().
				Str("session_id", event.SessionID).
				Str("event_type", string(event.Type)).
				Msg("WebSocket client too slow, event dropped")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	for data := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send event to client")
			client.conn.Close()
			// Drain so the channel can be closed by the reader
			for range client.send {
			}
			return
		}
	}
}
