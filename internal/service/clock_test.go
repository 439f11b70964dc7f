package service

import (
	"context"
	"testing"
	"time"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository/memory"
	"github.com/freeeve/quizbattle/pkg/battle"
)

func newTestClock() (*GameClock, *fakeClock) {
	fake := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewTimerStore()
	store.SetNow(fake.Now)
	clock := NewGameClock(store, battle.DefaultTiming())
	clock.SetNow(fake.Now)
	return clock, fake
}

func TestClockSubmissionWindow(t *testing.T) {
	clock, fake := newTestClock()
	ctx := context.Background()

	if ok, _ := clock.IsSubmissionAllowed(ctx, "g1"); !ok {
		t.Error("expected submissions allowed without a timer")
	}

	q := &model.Question{ID: "q1", Type: battle.QuestionMultipleChoice}
	timer, err := clock.Start(ctx, "g1", 1, 0, q)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if timer.Duration != 30*time.Second {
		t.Errorf("expected 30s, got %v", timer.Duration)
	}

	tests := []struct {
		at      time.Duration
		allowed bool
		left    time.Duration
	}{
		{10 * time.Second, true, 20 * time.Second},
		{30 * time.Second, true, 0},
		{33 * time.Second, true, 0},
		{35 * time.Second, true, 0},
		{36 * time.Second, false, 0},
	}
	start := fake.Now()
	for _, tt := range tests {
		fake.now = start.Add(tt.at)
		allowed, _ := clock.IsSubmissionAllowed(ctx, "g1")
		expired, _ := clock.IsExpiredPastGrace(ctx, "g1")
		left, ok, _ := clock.Remaining(ctx, "g1")
		if allowed != tt.allowed || expired == tt.allowed {
			t.Errorf("at %v: allowed=%v expired=%v, want allowed=%v", tt.at, allowed, expired, tt.allowed)
		}
		if !ok || left != tt.left {
			t.Errorf("at %v: remaining %v, want %v", tt.at, left, tt.left)
		}
	}

	if err := clock.Stop(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := clock.Remaining(ctx, "g1"); ok {
		t.Error("expected no timer after Stop")
	}
}

func TestClockEnumerationDuration(t *testing.T) {
	clock, _ := newTestClock()
	timer, err := clock.Start(context.Background(), "g1", 1, 0, &model.Question{ID: "q1", Type: battle.QuestionEnumeration, AnswerCount: 4})
	if err != nil {
		t.Fatal(err)
	}
	if timer.Duration != 120*time.Second {
		t.Errorf("expected 120s for 4 items, got %v", timer.Duration)
	}
	view, _ := clock.View(context.Background(), "g1")
	if !view.Running || view.Duration != 120 || view.Remaining != 120 || view.QuestionID != "q1" {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestClockWarningsFireOnce(t *testing.T) {
	clock, fake := newTestClock()
	ctx := context.Background()
	timer, _ := clock.Start(ctx, "g1", 1, 0, nil)
	start := fake.Now()

	due := func(at time.Duration) (int, bool) {
		t.Helper()
		fake.now = start.Add(at)
		cp, ok, err := clock.DueWarning(ctx, &timer)
		if err != nil {
			t.Fatal(err)
		}
		return cp, ok
	}

	if _, ok := due(15 * time.Second); ok {
		t.Error("expected no warning with 15s left")
	}
	if cp, ok := due(20 * time.Second); !ok || cp != 10 {
		t.Errorf("expected 10s warning, got %d %v", cp, ok)
	}
	if _, ok := due(20*time.Second + 500*time.Millisecond); ok {
		t.Error("expected 10s warning only once")
	}
	// A late sweep skips straight to the closest checkpoint.
	if cp, ok := due(27*time.Second + 500*time.Millisecond); !ok || cp != 3 {
		t.Errorf("expected 3s warning, got %d %v", cp, ok)
	}
	if cp, ok := due(28*time.Second + 500*time.Millisecond); !ok || cp != 2 {
		t.Errorf("expected 2s warning, got %d %v", cp, ok)
	}
	if _, ok := due(31 * time.Second); ok {
		t.Error("expected no warning once time is up")
	}

	// A restarted timer announces its checkpoints again.
	fake.now = start
	timer, _ = clock.Start(ctx, "g1", 2, 1, nil)
	if cp, ok := due(20 * time.Second); !ok || cp != 10 {
		t.Errorf("expected 10s warning after restart, got %d %v", cp, ok)
	}
}
