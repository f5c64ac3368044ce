package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thraizz/yomi-server-go/internal/config"
	"github.com/thraizz/yomi-server-go/internal/game"
	"github.com/thraizz/yomi-server-go/internal/game/combat"
	"github.com/thraizz/yomi-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Message types exchanged with clients.
const (
	MessageJoin    = "join"    // client -> server: data is optional {"skill": rank}
	MessageCommand = "command" // client -> server: data is "attack B", "block" or "cancel"
	MessageAction  = "action"  // client -> server: data is a game.Action
	MessageStatus  = "status"  // both ways
	MessageEvent   = "event"   // server -> client: a combat event
	MessageJoined  = "joined"  // server -> client
	MessageError   = "error"   // server -> client
)

// WSMessage is the envelope for every websocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	FighterID string          `json:"fighter_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventPayload is a combat event as clients see it.
type EventPayload struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Source    string            `json:"source"`
	Target    string            `json:"target,omitempty"`
	Amount    float64           `json:"amount,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func newEventPayload(event rules.Event) EventPayload {
	return EventPayload{
		ID:        event.ID,
		Type:      string(event.Type),
		Source:    event.SourceID,
		Target:    event.TargetID,
		Amount:    event.Amount,
		Reason:    event.Data,
		Timestamp: event.Timestamp,
		Metadata:  event.Metadata,
	}
}

func encode(msgType, fighterID string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: msgType, FighterID: fighterID, Data: raw})
}

// Client is one websocket connection. It controls at most one fighter.
type Client struct {
	conn      *websocket.Conn
	fighterID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the queue is full or the client is gone.
func (c *Client) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans combat events out to every connected client and feeds client
// commands into the encounter.
type Hub struct {
	encounter *game.Encounter
	cfg       config.WebSocketConfig
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	subscription int
}

// NewHub creates a hub for the encounter and subscribes it to the event bus.
func NewHub(encounter *game.Encounter, cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	h := &Hub{
		encounter: encounter,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, cfg.SendQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.subscription = encounter.Bus().Subscribe(h.onEvent)
	return h
}

// onEvent runs on the engine's publishing goroutine and must not block.
func (h *Hub) onEvent(event rules.Event) {
	message, err := encode(MessageEvent, "", newEventPayload(event))
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event_type", string(event.Type)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast queue full, event dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
		)
	}
}

// Run serves registrations and broadcasts until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.encounter.Bus().Unsubscribe(h.subscription)
		for client := range h.clients {
			client.close()
			delete(h.clients, client)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client registered", zap.String("remote", client.conn.RemoteAddr().String()))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.logger.Debug("client unregistered", zap.String("remote", client.conn.RemoteAddr().String()))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.enqueue(message) {
					h.logger.Warn("client too slow, disconnecting", zap.String("remote", client.conn.RemoteAddr().String()))
					client.close()
					delete(h.clients, client)
				}
			}
		}
	}
}

// ServeHTTP upgrades the request and starts the client's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, h.cfg.SendQueue),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.cfg.WriteTimeout)
	go client.readPump(h)
}

func (h *Hub) reply(client *Client, msgType string, data any) {
	message, err := encode(msgType, client.fighterID, data)
	if err != nil {
		h.logger.Error("failed to encode reply", zap.String("type", msgType), zap.Error(err))
		return
	}
	if !client.enqueue(message) {
		h.logger.Debug("reply dropped", zap.String("fighter", client.fighterID), zap.String("type", msgType))
	}
}

func (h *Hub) replyError(client *Client, err error) {
	h.reply(client, MessageError, map[string]string{"error": err.Error()})
}

func (h *Hub) handleMessage(client *Client, msg WSMessage) {
	h.logger.Debug("received message",
		zap.String("type", msg.Type),
		zap.String("fighter", client.fighterID),
	)

	switch msg.Type {
	case MessageJoin:
		if client.fighterID != "" {
			h.replyError(client, fmt.Errorf("already playing as %s", client.fighterID))
			return
		}
		if msg.FighterID == "" {
			h.replyError(client, errors.New("fighter_id is required"))
			return
		}
		var ranks map[combat.Skill]float64
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ranks); err != nil {
				h.replyError(client, fmt.Errorf("invalid ranks: %w", err))
				return
			}
		}
		if err := h.encounter.Join(msg.FighterID, ranks); err != nil {
			h.replyError(client, err)
			return
		}
		client.fighterID = msg.FighterID
		h.sendStatus(client, MessageJoined)

	case MessageCommand:
		var text string
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.replyError(client, fmt.Errorf("command must be a string: %w", err))
			return
		}
		action, err := game.ParseAction(client.fighterID, text)
		if err != nil {
			h.replyError(client, err)
			return
		}
		h.process(client, action)

	case MessageAction:
		var action game.Action
		if err := json.Unmarshal(msg.Data, &action); err != nil {
			h.replyError(client, fmt.Errorf("invalid action: %w", err))
			return
		}
		action.FighterID = client.fighterID
		h.process(client, action)

	case MessageStatus:
		h.sendStatus(client, MessageStatus)

	default:
		h.replyError(client, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (h *Hub) process(client *Client, action game.Action) {
	if client.fighterID == "" {
		h.replyError(client, game.ErrNotJoined)
		return
	}
	if err := h.encounter.ProcessAction(action); err != nil {
		h.replyError(client, err)
	}
}

func (h *Hub) sendStatus(client *Client, msgType string) {
	if client.fighterID == "" {
		h.replyError(client, game.ErrNotJoined)
		return
	}
	status, err := h.encounter.Status(client.fighterID)
	if err != nil {
		h.replyError(client, err)
		return
	}
	h.reply(client, msgType, status)
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		if c.fighterID != "" {
			h.encounter.Leave(c.fighterID)
		}
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read failed", zap.String("fighter", c.fighterID), zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.replyError(c, fmt.Errorf("invalid message: %w", err))
			continue
		}

		h.handleMessage(c, msg)
	}
}

func (c *Client) writePump(timeout time.Duration) {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// StartWebSocketServer serves the hub on cfg.Address at /ws until ctx ends.
func StartWebSocketServer(ctx context.Context, cfg config.WebSocketConfig, hub *Hub, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("websocket server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting WebSocket server", zap.String("address", cfg.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
