package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/model"
)

// Replies sent only to the connection that submitted an answer.
const (
	EventAnswerAccepted = "answer_accepted"
	EventAnswerRejected = "answer_rejected"
	EventError          = "error"
)

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action    string `json:"action"` // "subscribe", "unsubscribe" or "answer"
	GameID    string `json:"game_id"`
	QuizID    string `json:"quiz_id,omitempty"`
	Answer    string `json:"answer,omitempty"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub manages WebSocket connections and game-channel subscriptions.
// The lobby is a channel like any game, keyed by model.LobbyChannel.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	games       map[string]map[*WSConn]bool // gameID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		games:       make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	for gameID, conns := range h.games {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.games, gameID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a game channel.
func (h *Hub) Subscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.games[gameID] == nil {
		h.games[gameID] = make(map[*WSConn]bool)
	}
	h.games[gameID][c] = true
}

// Unsubscribe removes a connection from a game channel.
func (h *Hub) Unsubscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.games[gameID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.games, gameID)
		}
	}
}

// BroadcastToGame sends an event to all connections subscribed to a game.
func (h *Hub) BroadcastToGame(gameID string, event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.games[gameID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("gameId", gameID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// SendTo sends an event to a single connection.
func (h *Hub) SendTo(c *WSConn, event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", c.userID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connections[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("userId", c.userID).Msg("Dropping WebSocket reply, buffer full")
	}
}

// DeliverEvent implements redis.EventSink: events published by any server
// instance reach this instance's subscribers.
func (h *Hub) DeliverEvent(ev model.Event) {
	h.BroadcastToGame(ev.GameID, ev)
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GameSubscriberCount returns the number of connections subscribed to a game.
func (h *Hub) GameSubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}
