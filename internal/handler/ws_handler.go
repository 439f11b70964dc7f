package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/auth"
	"github.com/freeeve/quizbattle/internal/service"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second // Must be less than pongWait
	maxMsgSize    = 4096
	sendBufSize   = 256
	answerTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// AnswerSubmitter processes answers arriving over a websocket.
type AnswerSubmitter interface {
	SubmitAnswer(ctx context.Context, sub service.Submission) (*service.AnswerResult, error)
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub     *Hub
	jwtMgr  *auth.JWTManager
	answers AnswerSubmitter
}

// NewWSHandler creates a WSHandler. answers may be nil, in which case the
// "answer" action is refused.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, answers AnswerSubmitter) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, answers: answers}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	// Send a welcome message so the client can confirm the connection is live.
	h.hub.SendTo(client, newEvent("", "connected", map[string]any{"user_id": claims.UserID}))

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			break
		}
		h.handleMessage(c, message)
	}
}

// handleMessage dispatches one client message.
func (h *WSHandler) handleMessage(c *WSConn, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Action {
	case "subscribe":
		if msg.GameID != "" {
			h.hub.Subscribe(c, msg.GameID)
		}
	case "unsubscribe":
		if msg.GameID != "" {
			h.hub.Unsubscribe(c, msg.GameID)
		}
	case "answer":
		h.handleAnswer(c, msg)
	}
}

// handleAnswer runs an answer through the same path as the HTTP endpoint and
// replies to the sender only; everyone else learns the outcome from the
// game's broadcast events.
func (h *WSHandler) handleAnswer(c *WSConn, msg ClientMessage) {
	if h.answers == nil || msg.GameID == "" || msg.QuizID == "" {
		h.hub.SendTo(c, newEvent(msg.GameID, EventError, map[string]string{"error": "invalid answer message"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()
	res, err := h.answers.SubmitAnswer(ctx, service.Submission{
		GameID:    msg.GameID,
		PlayerID:  c.userID,
		QuizID:    msg.QuizID,
		Answer:    msg.Answer,
		IsCorrect: msg.IsCorrect,
	})

	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		h.hub.SendTo(c, newEvent(msg.GameID, EventAnswerRejected, rejectionBody{Error: rej.Error(), Code: rej.Code, Game: rej.Game, Result: res}))
	case err != nil:
		log.Error().Err(err).Str("gameId", msg.GameID).Str("userId", c.userID).Msg("WebSocket answer failed")
		_, public := publicError(err)
		h.hub.SendTo(c, newEvent(msg.GameID, EventError, map[string]string{"error": public}))
	default:
		h.hub.SendTo(c, newEvent(msg.GameID, EventAnswerAccepted, res))
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
