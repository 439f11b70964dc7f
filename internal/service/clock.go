package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/pkg/battle"
)

// GameClock tracks the countdown of the question each game is waiting on.
// Timer state lives in a shared TimerStore so every server process and the
// sweeper see the same deadlines.
type GameClock struct {
	store  repository.TimerStore
	timing battle.Timing
	now    func() time.Time
}

// NewGameClock creates a GameClock.
func NewGameClock(store repository.TimerStore, timing battle.Timing) *GameClock {
	return &GameClock{store: store, timing: timing, now: time.Now}
}

// SetNow overrides the clock source.
func (c *GameClock) SetNow(now func() time.Time) { c.now = now }

// Timing returns the clock settings.
func (c *GameClock) Timing() battle.Timing { return c.timing }

// Now returns the current time as seen by the clock.
func (c *GameClock) Now() time.Time { return c.now() }

// NewTimer builds the timer for question q on (turn, questionIndex) without
// persisting it. Callers holding the game lock arm it once the game commits.
func (c *GameClock) NewTimer(gameID string, turn, questionIndex int, q *model.Question) model.TurnTimer {
	t := model.TurnTimer{
		GameID:        gameID,
		Turn:          turn,
		QuestionIndex: questionIndex,
		StartedAt:     c.now(),
		Duration:      c.timing.BaseDuration,
	}
	if q != nil {
		t.QuestionID = q.ID
		t.Duration = c.timing.Duration(q.Type, q.AnswerCount)
	}
	return t
}

// Arm stores t as the game's timer, replacing any previous one and clearing
// the warnings sent for it.
func (c *GameClock) Arm(ctx context.Context, t model.TurnTimer) error {
	if err := c.store.SaveTimer(ctx, t, t.Duration+c.timing.GracePeriod); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}
	return nil
}

// Start builds and arms a timer in one step.
func (c *GameClock) Start(ctx context.Context, gameID string, turn, questionIndex int, q *model.Question) (model.TurnTimer, error) {
	t := c.NewTimer(gameID, turn, questionIndex, q)
	if err := c.Arm(ctx, t); err != nil {
		return model.TurnTimer{}, err
	}
	return t, nil
}

// Stop discards the timer of a game.
func (c *GameClock) Stop(ctx context.Context, gameID string) error {
	if err := c.store.DeleteTimer(ctx, gameID); err != nil {
		return fmt.Errorf("stop timer: %w", err)
	}
	return nil
}

// Timer returns the running timer of a game, or nil.
func (c *GameClock) Timer(ctx context.Context, gameID string) (*model.TurnTimer, error) {
	return c.store.LoadTimer(ctx, gameID)
}

// Remaining returns the nominal time left. ok is false when no timer runs.
func (c *GameClock) Remaining(ctx context.Context, gameID string) (left time.Duration, ok bool, err error) {
	t, err := c.store.LoadTimer(ctx, gameID)
	if err != nil || t == nil {
		return 0, false, err
	}
	return t.Remaining(c.now()), true, nil
}

// IsSubmissionAllowed reports whether an answer may still be accepted: no
// timer is running, or the grace window has not closed.
func (c *GameClock) IsSubmissionAllowed(ctx context.Context, gameID string) (bool, error) {
	t, err := c.store.LoadTimer(ctx, gameID)
	if err != nil {
		return false, err
	}
	return t == nil || !c.pastGrace(t), nil
}

// IsExpiredPastGrace reports whether the turn has hit its hard timeout.
func (c *GameClock) IsExpiredPastGrace(ctx context.Context, gameID string) (bool, error) {
	t, err := c.store.LoadTimer(ctx, gameID)
	if err != nil || t == nil {
		return false, err
	}
	return c.pastGrace(t), nil
}

func (c *GameClock) pastGrace(t *model.TurnTimer) bool {
	return t.Elapsed(c.now()) > t.Duration+c.timing.GracePeriod
}

// inGrace reports whether the nominal window has closed but the grace window has not.
func (c *GameClock) inGrace(t *model.TurnTimer) bool {
	elapsed := t.Elapsed(c.now())
	return elapsed > t.Duration && elapsed <= t.Duration+c.timing.GracePeriod
}

// DueWarning returns the checkpoint to announce for t, if any. Every
// checkpoint already passed is marked sent; only the closest one is returned
// so a late sweep does not emit a burst of stale warnings.
func (c *GameClock) DueWarning(ctx context.Context, t *model.TurnTimer) (int, bool, error) {
	left := t.Remaining(c.now())
	if left <= 0 {
		return 0, false, nil
	}
	secs := int(math.Ceil(left.Seconds()))

	due, found := 0, false
	for _, cp := range battle.WarningCheckpoints(t.Duration) {
		if cp < secs {
			continue
		}
		fresh, err := c.store.MarkWarning(ctx, t.GameID, cp)
		if err != nil {
			return 0, false, fmt.Errorf("mark warning: %w", err)
		}
		if fresh {
			due, found = cp, true
		}
	}
	return due, found, nil
}

// TimerView is the client-facing state of a turn timer.
type TimerView struct {
	GameID        string    `json:"game_id"`
	Running       bool      `json:"running"`
	Turn          int       `json:"turn,omitempty"`
	QuestionIndex int       `json:"question_index"`
	QuestionID    string    `json:"question_id,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	Duration      int       `json:"duration"`
	Remaining     int       `json:"remaining"`
	InGrace       bool      `json:"in_grace"`
}

// View describes the timer of a game for clients.
func (c *GameClock) View(ctx context.Context, gameID string) (TimerView, error) {
	t, err := c.store.LoadTimer(ctx, gameID)
	if err != nil {
		return TimerView{}, err
	}
	if t == nil {
		return TimerView{GameID: gameID}, nil
	}
	return c.viewOf(t), nil
}

func (c *GameClock) viewOf(t *model.TurnTimer) TimerView {
	return TimerView{
		GameID:        t.GameID,
		Running:       true,
		Turn:          t.Turn,
		QuestionIndex: t.QuestionIndex,
		QuestionID:    t.QuestionID,
		StartedAt:     t.StartedAt,
		Duration:      int(t.Duration / time.Second),
		Remaining:     int(math.Ceil(t.Remaining(c.now()).Seconds())),
		InGrace:       c.inGrace(t),
	}
}
