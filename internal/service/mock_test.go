package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/internal/repository/memory"
	"github.com/freeeve/quizbattle/pkg/battle"
)

type recordedEvent struct {
	gameID    string
	eventType string
	data      map[string]any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, _ := data.(map[string]any)
	b.events = append(b.events, recordedEvent{gameID: gameID, eventType: eventType, data: m})
}

// types returns the event types sent on gameID's channel, in order.
func (b *recordingBroadcaster) types(gameID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		if e.gameID == gameID {
			out = append(out, e.eventType)
		}
	}
	return out
}

func (b *recordingBroadcaster) count(gameID, eventType string) int {
	n := 0
	for _, t := range b.types(gameID) {
		if t == eventType {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) last(gameID, eventType string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].gameID == gameID && b.events[i].eventType == eventType {
			return b.events[i].data
		}
	}
	return nil
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

var errDiskFull = errors.New("disk full")

// failingSaveRepo is a game repository whose commits fail at Save.
type failingSaveRepo struct {
	*memory.GameRepo
}

func (r failingSaveRepo) WithLock(ctx context.Context, gameID string, fn func(repository.LockedGame) error) error {
	return r.GameRepo.WithLock(ctx, gameID, func(lg repository.LockedGame) error {
		return fn(failingSave{lg})
	})
}

type failingSave struct {
	repository.LockedGame
}

func (failingSave) Save(context.Context, *model.Game) error { return errDiskFull }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// noVariance makes monster damage equal to the monster's attack.
type noVariance struct{}

func (noVariance) IntN(n int) int { return n / 2 }

type fixture struct {
	games   *memory.GameRepo
	timers  *memory.TimerStore
	xp      *memory.ExperienceLedger
	fake    *fakeClock
	clock   *GameClock
	answers *AnswerService
	lobby   *LobbyService
	sweeper *TimeoutSweeper
	events  *recordingBroadcaster
}

func newFixture(t *testing.T, questions []model.Question, monsters ...model.Monster) *fixture {
	t.Helper()
	f := &fixture{
		games:  memory.NewGameRepo(),
		timers: memory.NewTimerStore(),
		xp:     memory.NewExperienceLedger(),
		fake:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		events: &recordingBroadcaster{},
	}
	f.timers.SetNow(f.fake.Now)
	f.clock = NewGameClock(f.timers, battle.DefaultTiming())
	f.clock.SetNow(f.fake.Now)

	questionRepo := memory.NewQuestionRepo(questions)
	rules := battle.DefaultRules()
	f.answers = NewAnswerService(f.games, questionRepo, f.xp, f.clock, rules, f.events)
	f.answers.SetRand(noVariance{})
	f.lobby = NewLobbyService(f.games, questionRepo, memory.NewMonsterRepo(monsters...), f.clock, f.answers, rules, f.events)
	f.lobby.SetShuffle(func([]string) {})
	f.sweeper = NewTimeoutSweeper(f.games, f.clock, f.answers, f.events)
	return f
}

// questionsFor returns n multiple-choice questions of fileID.
func questionsFor(fileID string, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{ID: fmt.Sprintf("%s-q%d", fileID, i+1), FileID: fileID, Type: battle.QuestionMultipleChoice, AnswerCount: 1}
	}
	return qs
}

// start creates a game for alice on file f1 and has bob join it.
func (f *fixture) start(t *testing.T, in CreateGameInput) *model.Game {
	t.Helper()
	ctx := context.Background()
	if in.FileID == "" && in.CollectionID == "" {
		in.FileID = "f1"
	}
	g, err := f.lobby.CreateGame(ctx, "alice", in)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	g, err = f.lobby.JoinGame(ctx, g.ID, "bob")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	return g
}

func (f *fixture) game(t *testing.T, id string) *model.Game {
	t.Helper()
	g, err := f.games.FindByID(context.Background(), id)
	if err != nil || g == nil {
		t.Fatalf("find game %s: %v", id, err)
	}
	return g
}

// answer submits the current question for whoever holds the turn.
func (f *fixture) answer(t *testing.T, gameID string, correct bool) *AnswerResult {
	t.Helper()
	g := f.game(t, gameID)
	res, err := f.answers.SubmitAnswer(context.Background(), Submission{
		GameID:    gameID,
		PlayerID:  g.PlayerID(battle.Slot(g.CurrentTurn)),
		QuizID:    g.CurrentQuestionID(),
		Answer:    "x",
		IsCorrect: correct,
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	return res
}
