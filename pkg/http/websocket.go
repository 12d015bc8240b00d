package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"shockscore-server/pkg/session"
)

// ScoreHub fans live frame results out to WebSocket clients. It
// implements session.Broadcaster; a slow client is dropped rather than
// allowed to stall the scoring pipeline.
type ScoreHub struct {
	logger       *logrus.Logger
	upgrader     websocket.Upgrader
	clients      map[*scoreClient]bool
	clientsMu    sync.RWMutex
	register     chan *scoreClient
	unregister   chan *scoreClient
	broadcast    chan *ScoreMessage
	pingInterval time.Duration
	done         chan struct{}
}

type scoreClient struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string // optional filter
}

// ScoreMessage is the wire envelope for live updates.
type ScoreMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Timestamp time.Time            `json:"timestamp"`
	Data      *session.FrameResult `json:"data,omitempty"`
}

// NewScoreHub creates a hub ready to accept connections.
func NewScoreHub(logger *logrus.Logger) *ScoreHub {
	return &ScoreHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:      make(map[*scoreClient]bool),
		register:     make(chan *scoreClient),
		unregister:   make(chan *scoreClient),
		broadcast:    make(chan *ScoreMessage, 256),
		pingInterval: 54 * time.Second,
		done:         make(chan struct{}),
	}
}

// Start begins the hub's event loop.
func (h *ScoreHub) Start() {
	go h.run()
}

// Stop shuts the hub down and closes all client connections.
func (h *ScoreHub) Stop() {
	close(h.done)
}

// BroadcastSample implements session.Broadcaster. Dropping a message
// when the broadcast buffer is full is preferable to blocking the
// frame pipeline.
func (h *ScoreHub) BroadcastSample(result *session.FrameResult) {
	msg := &ScoreMessage{
		Type:      "score_sample",
		SessionID: result.SessionID,
		Timestamp: time.Now(),
		Data:      result,
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Score broadcast buffer full, dropping sample")
	}
}

func (h *ScoreHub) run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.WithField("session_filter", client.sessionID).
				Debug("Score feed client registered")

		case client := <-h.unregister:
			h.dropClients(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-ticker.C:
			h.pingAll()

		case <-h.done:
			h.clientsMu.Lock()
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			h.clients = make(map[*scoreClient]bool)
			h.clientsMu.Unlock()
			return
		}
	}
}

func (h *ScoreHub) broadcastMessage(msg *ScoreMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal score message")
		return
	}

	var stale []*scoreClient
	h.clientsMu.RLock()
	for client := range h.clients {
		if client.sessionID != "" && client.sessionID != msg.SessionID {
			continue
		}
		select {
		case client.send <- body:
		default:
			stale = append(stale, client)
		}
	}
	h.clientsMu.RUnlock()

	if len(stale) > 0 {
		h.dropClients(stale...)
	}
}

func (h *ScoreHub) pingAll() {
	var stale []*scoreClient
	h.clientsMu.RLock()
	for client := range h.clients {
		if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			stale = append(stale, client)
		}
	}
	h.clientsMu.RUnlock()

	if len(stale) > 0 {
		h.dropClients(stale...)
	}
}

func (h *ScoreHub) dropClients(clients ...*scoreClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for _, client := range clients {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
			client.conn.Close()
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket subscription. The
// optional session_id query parameter filters the feed.
func (h *ScoreHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &scoreClient{
		conn:      conn,
		send:      make(chan []byte, 64),
		sessionID: r.URL.Query().Get("session_id"),
	}

	h.register <- client

	go client.writeLoop()
	go client.readLoop(h)
}

func (c *scoreClient) writeLoop() {
	for body := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames; the feed is one-way. It exists to
// notice client disconnects promptly.
func (c *scoreClient) readLoop(h *ScoreHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
