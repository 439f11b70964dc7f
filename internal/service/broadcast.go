package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub and the Redis event publisher.
type Broadcaster interface {
	BroadcastGameEvent(gameID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastGameEvent(string, string, any) {}

// FanoutBroadcaster delivers every event to each of its broadcasters in order.
type FanoutBroadcaster []Broadcaster

func (f FanoutBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	for _, b := range f {
		b.BroadcastGameEvent(gameID, eventType, data)
	}
}

type queuedEvent struct {
	gameID    string
	eventType string
	data      any
}

// AsyncBroadcaster queues events on a buffered channel and delivers them
// from a single worker, so a slow transport never holds up game processing.
// Events for one game are delivered in the order they were queued.
type AsyncBroadcaster struct {
	next  Broadcaster
	queue chan queuedEvent
	wait  time.Duration
}

// defaultEnqueueWait bounds how long a caller waits for room in a full queue.
const defaultEnqueueWait = 100 * time.Millisecond

// NewAsyncBroadcaster creates an AsyncBroadcaster in front of next.
func NewAsyncBroadcaster(next Broadcaster, size int) *AsyncBroadcaster {
	if size <= 0 {
		size = 1024
	}
	return &AsyncBroadcaster{next: next, queue: make(chan queuedEvent, size), wait: defaultEnqueueWait}
}

// SetEnqueueWait changes how long BroadcastGameEvent waits on a full queue.
func (a *AsyncBroadcaster) SetEnqueueWait(d time.Duration) { a.wait = d }

// BroadcastGameEvent enqueues the event. On a full queue it waits up to the
// enqueue wait for room, then drops the event and logs a warning. Callers
// only broadcast after commit, so the wait never holds a game lock.
func (a *AsyncBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	ev := queuedEvent{gameID: gameID, eventType: eventType, data: data}
	select {
	case a.queue <- ev:
		return
	default:
	}

	timer := time.NewTimer(a.wait)
	defer timer.Stop()
	select {
	case a.queue <- ev:
	case <-timer.C:
		log.Warn().Str("gameId", gameID).Str("type", eventType).Dur("waited", a.wait).Msg("Broadcast queue full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (a *AsyncBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.queue:
					a.deliver(ev)
				default:
					return
				}
			}
		case ev := <-a.queue:
			a.deliver(ev)
		}
	}
}

func (a *AsyncBroadcaster) deliver(ev queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("gameId", ev.gameID).Str("type", ev.eventType).Msg("Broadcast delivery panicked")
		}
	}()
	a.next.BroadcastGameEvent(ev.gameID, ev.eventType, ev.data)
}
