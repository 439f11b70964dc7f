package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/quizbattle/internal/model"
)

// BroadcastGameEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastGameEvent(gameID string, eventType string, data any) {
	h.BroadcastToGame(gameID, newEvent(gameID, eventType, data))
}

func newEvent(gameID, eventType string, data any) model.Event {
	return model.Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		GameID: gameID,
		Data:   data,
		SentAt: time.Now().UTC(),
	}
}
