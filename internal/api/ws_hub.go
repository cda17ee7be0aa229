// Package api — WebSocket hub for pushing alerts to connected front-ends
// in real time.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pmccbot/position-engine/internal/metrics"
	"github.com/pmccbot/position-engine/internal/model"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type        string `json:"type"` // "alert"
	AlertID     string `json:"alert_id"`
	ShortCallID string `json:"short_call_id"`
	AlertType   string `json:"alert_type"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

// WSHub manages WebSocket connections and broadcasts new alerts to all
// connected clients.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
			slog.Info("ws client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastAlert pushes a freshly created alert to all clients. Non-
// blocking: the message is dropped when the buffer is full so alert
// evaluation never stalls on a slow client.
func (h *WSHub) BroadcastAlert(a model.Alert) {
	data, err := json.Marshal(WSMessage{
		Type:        "alert",
		AlertID:     a.ID,
		ShortCallID: a.ShortCallID,
		AlertType:   string(a.Type),
		Message:     a.Message,
		TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
