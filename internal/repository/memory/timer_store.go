package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/quizbattle/internal/model"
)

// timerRetention keeps an expired timer readable so the sweeper can still
// resolve it; it mirrors the key TTL used by the Redis store.
const timerRetention = 5 * time.Minute

type timerEntry struct {
	timer    model.TurnTimer
	expireAt time.Time
	warnings map[int]bool
}

// TimerStore is an in-process TimerStore. It is only correct when a single
// server process owns every game.
type TimerStore struct {
	mu       sync.Mutex
	timers   map[string]*timerEntry
	activity map[string]time.Time
	now      func() time.Time
}

// NewTimerStore creates an empty TimerStore.
func NewTimerStore() *TimerStore {
	return &TimerStore{
		timers:   make(map[string]*timerEntry),
		activity: make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetNow overrides the clock used to expire entries.
func (s *TimerStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *TimerStore) SaveTimer(_ context.Context, t model.TurnTimer, expireAfter time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[t.GameID] = &timerEntry{
		timer:    t,
		expireAt: t.StartedAt.Add(expireAfter + timerRetention),
		warnings: make(map[int]bool),
	}
	return nil
}

func (s *TimerStore) LoadTimer(_ context.Context, gameID string) (*model.TurnTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(gameID)
	if e == nil {
		return nil, nil
	}
	t := e.timer
	return &t, nil
}

// live returns the entry for gameID, dropping it if it has aged out.
func (s *TimerStore) live(gameID string) *timerEntry {
	e, ok := s.timers[gameID]
	if !ok {
		return nil
	}
	if s.now().After(e.expireAt) {
		delete(s.timers, gameID)
		return nil
	}
	return e
}

func (s *TimerStore) DeleteTimer(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, gameID)
	return nil
}

func (s *TimerStore) MarkWarning(_ context.Context, gameID string, checkpoint int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(gameID)
	if e == nil || e.warnings[checkpoint] {
		return false, nil
	}
	e.warnings[checkpoint] = true
	return true, nil
}

func (s *TimerStore) ActiveTimers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		if s.live(id) != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *TimerStore) TouchActivity(_ context.Context, gameID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[gameID] = at
	return nil
}

func (s *TimerStore) LastActivity(_ context.Context, gameID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.activity[gameID]
	return at, ok, nil
}

func (s *TimerStore) ClearGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, gameID)
	delete(s.activity, gameID)
	return nil
}
