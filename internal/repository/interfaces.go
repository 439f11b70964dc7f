package repository

import (
	"context"
	"errors"
	"time"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/pkg/battle"
)

// ErrNotFound is returned by WithLock when the game does not exist.
var ErrNotFound = errors.New("not found")

// GameRepository stores multiplayer games.
type GameRepository interface {
	Create(ctx context.Context, g *model.Game) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	// WithLock holds an exclusive lock on one game for the duration of fn.
	// Everything fn writes commits together; a non-nil error discards it all.
	WithLock(ctx context.Context, gameID string, fn func(LockedGame) error) error
}

// LockedGame is a game row held under an exclusive lock.
type LockedGame interface {
	// Game returns the locked snapshot. Callers mutate it and pass it to Save.
	Game() *model.Game
	// RecordAnswer updates only slot's answer statistics and refreshes the
	// snapshot with the stored values.
	RecordAnswer(ctx context.Context, slot battle.Slot, correct bool) (battle.Stats, error)
	// Save writes the shared combat, turn and lifecycle fields.
	Save(ctx context.Context, g *model.Game) error
}

// QuestionRepository looks up quiz questions owned by the content service.
type QuestionRepository interface {
	ListBySource(ctx context.Context, fileID, collectionID string) ([]model.Question, error)
	FindByID(ctx context.Context, id string) (*model.Question, error)
}

// MonsterRepository looks up PvE monster stats.
type MonsterRepository interface {
	FindByID(ctx context.Context, id string) (*model.Monster, error)
}

// ExperienceRepository credits experience points to users.
type ExperienceRepository interface {
	AddExperience(ctx context.Context, userID string, amount int, gameID string) error
}

// TimerStore is the shared keyed store behind the game clock.
type TimerStore interface {
	// SaveTimer replaces the timer of a game and clears its sent warnings.
	// The timer is considered expired once expireAfter has passed.
	SaveTimer(ctx context.Context, t model.TurnTimer, expireAfter time.Duration) error
	LoadTimer(ctx context.Context, gameID string) (*model.TurnTimer, error)
	DeleteTimer(ctx context.Context, gameID string) error
	// MarkWarning records a checkpoint as sent and reports whether it was new.
	MarkWarning(ctx context.Context, gameID string, checkpoint int) (bool, error)
	ActiveTimers(ctx context.Context) ([]string, error)
	TouchActivity(ctx context.Context, gameID string, at time.Time) error
	LastActivity(ctx context.Context, gameID string) (time.Time, bool, error)
	ClearGame(ctx context.Context, gameID string) error
}
