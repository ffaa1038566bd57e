package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
	"github.com/hanifka/lentera/internal/insight"
	"github.com/hanifka/lentera/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Observers only send small
	// control frames.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected observers and fans session output out
// to them. It implements the session Publisher and the diagram renderer
// boundary: the model's drawing instructions are frames on the same wire.
type Hub struct {
	// Connected observers.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Last broadcast of each replayable frame, sent to late joiners.
	lastStatus     []byte
	lastTranscript []byte
	lastInsight    []byte

	// quality supplies the current cadence for status frames. May be nil.
	quality func() entities.QualityState

	logger *zap.Logger
}

// NewHub creates a new observer hub
func NewHub(quality func() entities.QualityState, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quality:    quality,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.observerID] = client
			replay := [][]byte{h.lastStatus, h.lastTranscript, h.lastInsight}
			h.mu.Unlock()
			// Late joiners catch up on the current session picture.
			for _, payload := range replay {
				if payload != nil {
					client.enqueue(payload)
				}
			}
			h.logger.Info("Observer registered", zap.String("observerID", client.observerID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.observerID]; ok && current == client {
				delete(h.clients, client.observerID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Observer unregistered", zap.String("observerID", client.observerID))
		}
	}
}

// PublishStatus fans the connection state out to all observers.
func (h *Hub) PublishStatus(state session.State, speaking bool) {
	var quality *QualityPayload
	if h.quality != nil {
		q := h.quality()
		quality = &QualityPayload{
			Tier:        string(q.Tier),
			FrameRate:   q.FrameRate,
			Compression: q.Compression,
		}
	}
	h.broadcast(NewStatusFrame(string(state), speaking, quality), &h.lastStatus)
}

// PublishTranscript fans the merged message log out to all observers.
func (h *Hub) PublishTranscript(messages []entities.ChatMessage) {
	h.broadcast(NewTranscriptFrame(messages), &h.lastTranscript)
}

// PublishInsight fans the insight snapshot out to all observers.
func (h *Hub) PublishInsight(snapshot insight.Snapshot) {
	h.broadcast(NewInsightFrame(snapshot), &h.lastInsight)
}

// Render sends a drawing instruction to all observer boards. A session with
// no observers still succeeds; the instruction simply has no audience.
func (h *Hub) Render(ctx context.Context, instruction repositories.DiagramInstruction) error {
	h.broadcast(NewDiagramFrame(instruction.Kind, instruction.Title, instruction.Spec), nil)
	return nil
}

// ObserverCount reports the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(frame interface{}, cache *[]byte) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to marshal frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	if cache != nil {
		*cache = payload
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.enqueue(payload)
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Observer ID for this client
	observerID string

	validator *FrameValidator

	// Logger
	logger *zap.Logger
}

// enqueue hands a frame to the client's writer without blocking the
// session loop. Observers that cannot keep up are dropped.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Observer too slow, dropping", zap.String("observerID", c.observerID))
		select {
		case c.hub.unregister <- c:
		default:
		}
	}
}

// HandleWebSocket handles observer websocket requests with a
// pre-authenticated observer ID.
func HandleWebSocket(hub *Hub, c echo.Context, observerID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan WriteData, 256),
		observerID: observerID,
		validator:  NewFrameValidator(),
		logger:     logger,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}
		c.processFrame(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processFrame processes inbound frames from the observer
func (c *Client) processFrame(message []byte) {
	frame, err := c.validator.ValidateFrame(message)
	if err != nil {
		c.logger.Warn("Rejected observer frame",
			zap.String("observerID", c.observerID),
			zap.Error(err))
		payload, merr := json.Marshal(NewErrorFrame("INVALID_FRAME", err.Error()))
		if merr == nil {
			c.enqueue(payload)
		}
		return
	}

	switch f := frame.(type) {
	case *PingFrame:
		payload, merr := json.Marshal(NewPongFrame(f.Data))
		if merr == nil {
			c.enqueue(payload)
		}
	}
}
