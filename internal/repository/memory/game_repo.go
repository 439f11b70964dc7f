// Package memory provides single-process implementations of the repository
// interfaces, used for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/pkg/battle"
)

// GameRepo keeps games in a map and serializes mutations with one mutex per game.
type GameRepo struct {
	mu    sync.RWMutex
	games map[string]*model.Game
	locks sync.Map
}

// NewGameRepo creates an empty GameRepo.
func NewGameRepo() *GameRepo {
	return &GameRepo{games: make(map[string]*model.Game)}
}

// Create stores a new game, assigning an id if it has none.
func (r *GameRepo) Create(_ context.Context, g *model.Game) (*model.Game, error) {
	cp := g.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = model.StatusWaiting
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.games[cp.ID] = cp
	r.mu.Unlock()
	return cp.Clone(), nil
}

// FindByID returns a copy of the game, or nil if it does not exist.
func (r *GameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

// ListOpen returns waiting games, newest first.
func (r *GameRepo) ListOpen(_ context.Context) ([]model.Game, error) {
	games := r.list(model.StatusWaiting)
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.After(games[j].CreatedAt) })
	return games, nil
}

// ListActive returns active games, oldest first.
func (r *GameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	games := r.list(model.StatusActive)
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.Before(games[j].CreatedAt) })
	return games, nil
}

func (r *GameRepo) list(status string) []model.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var games []model.Game
	for _, g := range r.games {
		if g.Status == status {
			games = append(games, *g.Clone())
		}
	}
	return games
}

// gameLock returns the mutex for a given game ID.
func (r *GameRepo) gameLock(gameID string) *sync.Mutex {
	v, _ := r.locks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// WithLock runs fn against a private copy of the game and publishes the
// copy only if fn succeeds.
func (r *GameRepo) WithLock(ctx context.Context, gameID string, fn func(repository.LockedGame) error) error {
	mu := r.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := r.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if current == nil {
		return repository.ErrNotFound
	}

	lg := &lockedGame{game: current, stats: make(map[battle.Slot]battle.Stats)}
	if err := fn(lg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.games[gameID]
	if lg.saved != nil {
		next := lg.saved.Clone()
		next.PlayerOneStats = stored.PlayerOneStats
		next.PlayerTwoStats = stored.PlayerTwoStats
		stored = next
	}
	for slot, s := range lg.stats {
		*stored.StatsFor(slot) = s
	}
	r.games[gameID] = stored
	return nil
}

type lockedGame struct {
	game  *model.Game
	saved *model.Game
	stats map[battle.Slot]battle.Stats
}

func (l *lockedGame) Game() *model.Game { return l.game }

func (l *lockedGame) RecordAnswer(_ context.Context, slot battle.Slot, correct bool) (battle.Stats, error) {
	s := *l.game.StatsFor(slot)
	s.Record(correct)
	l.stats[slot] = s
	*l.game.StatsFor(slot) = s
	return s, nil
}

func (l *lockedGame) Save(_ context.Context, g *model.Game) error {
	l.saved = g.Clone()
	return nil
}
