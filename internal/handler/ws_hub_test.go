package handler

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/quizbattle/internal/model"
)

func newTestConn(userID string) *WSConn {
	return &WSConn{
		conn:   nil, // no real connection for hub tests
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

func receive(t *testing.T, c *WSConn) model.Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev model.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("%s did not receive an event", c.userID)
	}
	return model.Event{}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")

	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}

	hub.Unregister(c)
	hub.Unregister(c) // second call is a no-op
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastGameEvent(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("user-1")
	c2 := newTestConn("user-2")
	c3 := newTestConn("user-3") // not subscribed
	for _, c := range []*WSConn{c1, c2, c3} {
		hub.Register(c)
		defer hub.Unregister(c)
	}
	hub.Subscribe(c1, "game-1")
	hub.Subscribe(c2, "game-1")

	hub.BroadcastGameEvent("game-1", model.EventTimerWarning, map[string]any{"remaining": 10})

	for _, c := range []*WSConn{c1, c2} {
		ev := receive(t, c)
		if ev.Type != model.EventTimerWarning || ev.GameID != "game-1" || ev.ID == "" || ev.SentAt.IsZero() {
			t.Errorf("unexpected event %+v", ev)
		}
	}
	select {
	case <-c3.send:
		t.Error("c3 should not have received broadcast")
	default:
	}
}

func TestHubLobbyChannel(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, model.LobbyChannel)

	hub.DeliverEvent(model.Event{ID: "e1", Type: model.EventLobbyUpdate, GameID: model.LobbyChannel})

	if ev := receive(t, c); ev.ID != "e1" || ev.Type != model.EventLobbyUpdate {
		t.Errorf("expected forwarded lobby event, got %+v", ev)
	}
}

func TestHubSendTo(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("user-1")
	c2 := newTestConn("user-1") // same user, second tab
	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)

	hub.SendTo(c1, newEvent("game-1", EventAnswerAccepted, nil))

	if ev := receive(t, c1); ev.Type != EventAnswerAccepted {
		t.Errorf("expected answer_accepted, got %s", ev.Type)
	}
	select {
	case <-c2.send:
		t.Error("reply should only reach the sending connection")
	default:
	}

	// Unregistered connections are skipped rather than written to a closed channel.
	gone := newTestConn("user-2")
	hub.Register(gone)
	hub.Unregister(gone)
	hub.SendTo(gone, newEvent("game-1", EventError, nil))
}

func TestHubUnregisterCleansUpSubscriptions(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	hub.Register(c)
	hub.Subscribe(c, "game-1")
	hub.Subscribe(c, "game-2")

	hub.Unregister(c)

	if hub.GameSubscriberCount("game-1") != 0 || hub.GameSubscriberCount("game-2") != 0 {
		t.Error("expected no subscribers after unregister")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestConn("user")
			hub.Register(c)
			hub.Subscribe(c, "game-1")
			hub.BroadcastGameEvent("game-1", model.EventTimerStarted, nil)
			hub.Unsubscribe(c, "game-1")
			hub.Unregister(c)
		}()
	}

	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}
