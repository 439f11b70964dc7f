package service

import (
	"context"
	"testing"
	"time"
)

type panickingBroadcaster struct {
	next Broadcaster
}

func (p panickingBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	if eventType == "boom" {
		panic("transport exploded")
	}
	p.next.BroadcastGameEvent(gameID, eventType, data)
}

func TestAsyncBroadcasterDeliversInOrder(t *testing.T) {
	rec := &recordingBroadcaster{}
	async := NewAsyncBroadcaster(panickingBroadcaster{next: rec}, 8)

	async.BroadcastGameEvent("g1", "answer_submitted", nil)
	async.BroadcastGameEvent("g1", "boom", nil)
	async.BroadcastGameEvent("g1", "timer_started", nil)

	// A cancelled context drains the queue and returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	async.Run(ctx)

	types := rec.types("g1")
	if len(types) != 2 || types[0] != "answer_submitted" || types[1] != "timer_started" {
		t.Errorf("expected delivery to survive the panic in order, got %v", types)
	}
}

func TestAsyncBroadcasterDropsWhenFull(t *testing.T) {
	rec := &recordingBroadcaster{}
	async := NewAsyncBroadcaster(rec, 2)
	async.SetEnqueueWait(time.Millisecond)
	for range 5 {
		async.BroadcastGameEvent("g1", "timer_warning", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	async.Run(ctx)

	if n := rec.count("g1", "timer_warning"); n != 2 {
		t.Errorf("expected 2 delivered events, got %d", n)
	}
}

func TestAsyncBroadcasterWaitsForRoom(t *testing.T) {
	rec := &recordingBroadcaster{}
	async := NewAsyncBroadcaster(rec, 1)
	async.SetEnqueueWait(5 * time.Second)
	async.BroadcastGameEvent("g1", "answer_submitted", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		async.Run(ctx)
		close(done)
	}()

	// Blocks until the worker frees a slot instead of dropping.
	async.BroadcastGameEvent("g1", "timer_started", nil)
	cancel()
	<-done

	types := rec.types("g1")
	if len(types) != 2 || types[1] != "timer_started" {
		t.Errorf("expected both events delivered, got %v", types)
	}
}

func TestFanoutBroadcaster(t *testing.T) {
	a, b := &recordingBroadcaster{}, &recordingBroadcaster{}
	FanoutBroadcaster{a, b, NoopBroadcaster{}}.BroadcastGameEvent("g1", "game_ended", map[string]any{"reason": "forfeit"})

	for _, rec := range []*recordingBroadcaster{a, b} {
		if ev := rec.last("g1", "game_ended"); ev == nil || ev["reason"] != "forfeit" {
			t.Errorf("expected game_ended on every broadcaster, got %v", ev)
		}
	}
}
