package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/model"
)

const gameChannelPrefix = "game."

// ChannelFor returns the pub/sub channel carrying a game's events.
func ChannelFor(gameID string) string {
	if gameID == model.LobbyChannel {
		return model.LobbyChannel
	}
	return gameChannelPrefix + gameID
}

// EventPublisher fans game events out through Redis pub/sub so every server
// instance can deliver them to its own websocket clients.
type EventPublisher struct {
	client *Client
	now    func() time.Time
}

// NewEventPublisher creates an EventPublisher.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client, now: time.Now}
}

// BroadcastGameEvent implements service.Broadcaster. Failures are logged only.
func (p *EventPublisher) BroadcastGameEvent(gameID string, eventType string, data any) {
	ev := model.Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		GameID: gameID,
		Data:   data,
		SentAt: p.now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Str("type", eventType).Msg("Failed to marshal event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.rdb.Publish(ctx, ChannelFor(gameID), payload).Err(); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Str("type", eventType).Msg("Failed to publish event")
	}
}

// EventSink receives events decoded from the pub/sub transport.
type EventSink interface {
	DeliverEvent(ev model.Event)
}

// EventSubscriber forwards every published game and lobby event to a sink.
type EventSubscriber struct {
	client *Client
	sink   EventSink
}

// NewEventSubscriber creates an EventSubscriber.
func NewEventSubscriber(client *Client, sink EventSink) *EventSubscriber {
	return &EventSubscriber{client: client, sink: sink}
}

// Run blocks until ctx is cancelled.
func (s *EventSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.rdb.PSubscribe(ctx, gameChannelPrefix+"*", model.LobbyChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info().Msg("Event subscriber started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event subscriber stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.forward(msg.Channel, msg.Payload)
		}
	}
}

func (s *EventSubscriber) forward(channel, payload string) {
	var ev model.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Dropping undecodable event")
		return
	}
	if ev.GameID == "" {
		ev.GameID = strings.TrimPrefix(channel, gameChannelPrefix)
	}
	s.sink.DeliverEvent(ev)
}
