package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/pkg/battle"
)

// Submission is one player's answer to the question their turn is on.
type Submission struct {
	GameID    string
	PlayerID  string
	QuizID    string
	Answer    string
	IsCorrect bool
}

// AnswerResult describes a processed answer or timeout.
type AnswerResult struct {
	Game        model.GameSnapshot `json:"game"`
	PlayerID    string             `json:"player_id"`
	Correct     bool               `json:"is_correct"`
	DamageDealt int                `json:"damage_dealt"`
	DamageTaken int                `json:"damage_taken"`
	ScoreGained int                `json:"score_gained"`
	Stats       battle.Stats       `json:"stats"`
	TimedOut    bool               `json:"timed_out"`
	InGrace     bool               `json:"in_grace"`
	GameOver    bool               `json:"game_over"`
}

// AnswerService is the single path through which an active game changes:
// player answers, synthetic timeouts and forfeits all go through here.
type AnswerService struct {
	gameRepo    repository.GameRepository
	questions   repository.QuestionRepository
	xp          repository.ExperienceRepository
	clock       *GameClock
	rules       battle.Rules
	broadcaster Broadcaster
	rng         battle.Rand
}

// NewAnswerService creates an AnswerService.
func NewAnswerService(gameRepo repository.GameRepository, questions repository.QuestionRepository, xp repository.ExperienceRepository, clock *GameClock, rules battle.Rules, broadcaster Broadcaster) *AnswerService {
	return &AnswerService{
		gameRepo:    gameRepo,
		questions:   questions,
		xp:          xp,
		clock:       clock,
		rules:       rules,
		broadcaster: broadcaster,
		rng:         globalRand{},
	}
}

// SetRand replaces the source of monster damage variance.
func (s *AnswerService) SetRand(rng battle.Rand) { s.rng = rng }

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// transition is what a locked mutation did, carried out of the lock so
// side effects run only after commit.
type transition struct {
	game     *model.Game
	playerID string
	delta    battle.Delta
	stats    battle.Stats
	verdict  battle.Verdict
	timeout  bool
	inGrace  bool
	timer    *model.TurnTimer
}

// SubmitAnswer processes a player's answer. Refused answers return a
// *RejectionError and leave the game untouched, except when the turn has run
// past its grace window: the turn is then resolved as a timeout and both the
// resulting state and a turn_expired rejection are returned.
func (s *AnswerService) SubmitAnswer(ctx context.Context, sub Submission) (*AnswerResult, error) {
	var tr *transition
	var rejection *RejectionError

	err := s.gameRepo.WithLock(ctx, sub.GameID, func(lg repository.LockedGame) error {
		g := lg.Game()
		slot := g.SlotOf(sub.PlayerID)
		if code, ok := validateTurn(g, slot); !ok {
			rejection = reject(code, g)
			return nil
		}
		if sub.QuizID != "" && sub.QuizID != g.CurrentQuestionID() {
			rejection = reject(RejectWrongQuestion, g)
			return nil
		}

		timer, err := s.currentTimer(ctx, g)
		if err != nil {
			return err
		}
		if timer != nil && s.clock.pastGrace(timer) {
			rejection = &RejectionError{Code: RejectTurnExpired}
			tr, err = s.apply(ctx, lg, slot, false, true)
			return err
		}

		tr, err = s.apply(ctx, lg, slot, sub.IsCorrect, false)
		if tr != nil {
			tr.inGrace = timer != nil && s.clock.inGrace(timer)
		}
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("gameId", sub.GameID).Str("userId", sub.PlayerID).Msg("Answer processing failed")
		return nil, fmt.Errorf("submit answer: %w", err)
	}

	if tr != nil {
		s.afterCommit(ctx, tr)
	}
	if rejection != nil {
		var result *AnswerResult
		if tr != nil {
			snap := tr.game.Snapshot()
			rejection.Game = &snap
			result = tr.result()
		}
		log.Debug().Str("gameId", sub.GameID).Str("userId", sub.PlayerID).Str("code", string(rejection.Code)).Msg("Answer rejected")
		return result, rejection
	}
	return tr.result(), nil
}

// validateTurn checks that slot may answer now.
func validateTurn(g *model.Game, slot battle.Slot) (RejectCode, bool) {
	switch {
	case !slot.Valid():
		return RejectNotParticipant, false
	case g.IsTerminal():
		log.Warn().Str("gameId", g.ID).Str("status", g.Status).Msg("Answer attempted on finished game")
		return RejectGameOver, false
	case g.Status != model.StatusActive:
		return RejectGameNotActive, false
	case g.PlayerTwoID == "":
		return RejectMissingOpponent, false
	case battle.Slot(g.CurrentTurn) != slot:
		return RejectNotYourTurn, false
	}
	return "", true
}

// currentTimer returns the game's timer if it belongs to the turn the game is on.
func (s *AnswerService) currentTimer(ctx context.Context, g *model.Game) (*model.TurnTimer, error) {
	t, err := s.clock.Timer(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("load timer: %w", err)
	}
	if t == nil || t.Turn != g.CurrentTurn || t.QuestionIndex != g.CurrentQuestionIndex {
		return nil, nil
	}
	return t, nil
}

// SubmitTimeout resolves the turn (turn, questionIndex) as unanswered. It is a
// no-op returning nil, nil when the game has already moved past that turn.
func (s *AnswerService) SubmitTimeout(ctx context.Context, gameID string, turn, questionIndex int) (*AnswerResult, error) {
	var tr *transition
	err := s.gameRepo.WithLock(ctx, gameID, func(lg repository.LockedGame) error {
		g := lg.Game()
		if g.Status != model.StatusActive || g.PlayerTwoID == "" ||
			g.CurrentTurn != turn || g.CurrentQuestionIndex != questionIndex {
			return nil
		}
		var err error
		tr, err = s.apply(ctx, lg, battle.Slot(turn), false, true)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Timeout processing failed")
		return nil, fmt.Errorf("submit timeout: %w", err)
	}
	if tr == nil {
		log.Debug().Str("gameId", gameID).Int("turn", turn).Int("questionIndex", questionIndex).Msg("Skipping stale timeout")
		return nil, nil
	}
	s.afterCommit(ctx, tr)
	return tr.result(), nil
}

// apply records an answer by slot and moves the game on. It runs under the
// game lock and writes nothing outside the ledger: the next timer is only
// built here and armed by afterCommit.
func (s *AnswerService) apply(ctx context.Context, lg repository.LockedGame, slot battle.Slot, correct, timeout bool) (*transition, error) {
	stats, err := lg.RecordAnswer(ctx, slot, correct)
	if err != nil {
		return nil, err
	}
	g := lg.Game().Clone()
	playerID := g.PlayerID(slot)

	state, delta := s.rules.Resolve(g.State(), slot, correct, s.rng)
	g.ApplyCombat(state)
	verdict := s.rules.Evaluate(g.State())

	now := s.clock.Now()
	g.LastActivityAt = &now
	tr := &transition{playerID: playerID, delta: delta, stats: stats, verdict: verdict, timeout: timeout}

	if verdict.Ended {
		finish(g, verdict, model.StatusFinished, now)
	} else {
		g.CurrentTurn = int(battle.Slot(g.CurrentTurn).Other())
		g.CurrentQuestionIndex++
		g.TurnStartedAt = &now
		timer := s.clock.NewTimer(g.ID, g.CurrentTurn, g.CurrentQuestionIndex, s.question(ctx, g.CurrentQuestionID()))
		tr.timer = &timer
	}

	if err := lg.Save(ctx, g); err != nil {
		return nil, err
	}
	tr.game = g
	return tr, nil
}

// question looks up a question for its timer length. Lookup failures fall
// back to the base duration.
func (s *AnswerService) question(ctx context.Context, id string) *model.Question {
	if id == "" {
		return nil
	}
	q, err := s.questions.FindByID(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("questionId", id).Msg("Question lookup failed, using base duration")
		return nil
	}
	return q
}

func finish(g *model.Game, v battle.Verdict, status string, now time.Time) {
	g.Status = status
	g.EndReason = v.Reason
	g.FinishedAt = &now
	if g.GameMode == battle.ModePvP && v.Outcome == battle.OutcomeWin && v.Winner.Valid() {
		g.WinnerID = g.PlayerID(v.Winner)
	}
}

// Forfeit ends an active game conceded by userID.
func (s *AnswerService) Forfeit(ctx context.Context, gameID, userID, reason string) (*model.Game, error) {
	return s.forfeit(ctx, gameID, reason, func(g *model.Game) (battle.Slot, error) {
		slot := g.SlotOf(userID)
		if !slot.Valid() {
			return battle.NoSlot, ErrNotInGame
		}
		if g.Status != model.StatusActive {
			return battle.NoSlot, ErrCannotAbandon
		}
		return slot, nil
	})
}

// ForfeitIfStalled forfeits the game against the player holding turn, as long
// as the game is still on that turn and question.
func (s *AnswerService) ForfeitIfStalled(ctx context.Context, gameID string, turn, questionIndex int) (*model.Game, error) {
	return s.forfeit(ctx, gameID, battle.ReasonInactivity, func(g *model.Game) (battle.Slot, error) {
		if g.Status != model.StatusActive || g.CurrentTurn != turn || g.CurrentQuestionIndex != questionIndex {
			return battle.NoSlot, nil
		}
		return battle.Slot(turn), nil
	})
}

func (s *AnswerService) forfeit(ctx context.Context, gameID, reason string, loserOf func(*model.Game) (battle.Slot, error)) (*model.Game, error) {
	var tr *transition
	err := s.gameRepo.WithLock(ctx, gameID, func(lg repository.LockedGame) error {
		g := lg.Game().Clone()
		loser, err := loserOf(g)
		if err != nil || !loser.Valid() {
			return err
		}
		now := s.clock.Now()
		verdict := battle.Forfeit(loser, reason)
		finish(g, verdict, model.StatusForfeited, now)
		g.LastActivityAt = &now
		if err := lg.Save(ctx, g); err != nil {
			return err
		}
		tr = &transition{game: g, playerID: g.PlayerID(loser), verdict: verdict}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if errors.Is(err, ErrNotInGame) || errors.Is(err, ErrCannotAbandon) {
		return nil, err
	}
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Forfeit failed")
		return nil, fmt.Errorf("forfeit: %w", err)
	}
	if tr == nil {
		return nil, nil
	}
	log.Info().Str("gameId", gameID).Str("loser", tr.playerID).Str("reason", reason).Msg("Game forfeited")
	s.endGame(ctx, tr)
	return tr.game, nil
}

// afterCommit runs the side effects of a committed transition.
func (s *AnswerService) afterCommit(ctx context.Context, tr *transition) {
	g := tr.game
	if tr.timer != nil {
		// A timer that fails to arm is picked up by the sweeper's recovery pass.
		if err := s.clock.Arm(ctx, *tr.timer); err != nil {
			log.Error().Err(err).Str("gameId", g.ID).Msg("Failed to arm turn timer")
			tr.timer = nil
		}
	}
	if err := s.clock.store.TouchActivity(ctx, g.ID, s.clock.Now()); err != nil {
		log.Warn().Err(err).Str("gameId", g.ID).Msg("Failed to record activity")
	}

	eventType := model.EventAnswerSubmitted
	if tr.timeout {
		eventType = model.EventTimerTimeout
	}
	s.broadcaster.BroadcastGameEvent(g.ID, eventType, map[string]any{
		"game":         g.Snapshot(),
		"player_id":    tr.playerID,
		"is_correct":   tr.delta.Correct,
		"damage_dealt": tr.delta.DamageDealt,
		"damage_taken": tr.delta.DamageTaken,
		"score_gained": tr.delta.ScoreGained,
		"accuracy":     tr.stats.Accuracy,
		"streak":       tr.stats.Streak,
		"max_streak":   tr.stats.MaxStreak,
		"timed_out":    tr.timeout,
	})

	if tr.verdict.Ended {
		log.Info().Str("gameId", g.ID).Str("reason", tr.verdict.Reason).Str("outcome", string(tr.verdict.Outcome)).Msg("Game ended")
		s.endGame(ctx, tr)
		return
	}
	if tr.timer != nil {
		s.broadcaster.BroadcastGameEvent(g.ID, model.EventTimerStarted, map[string]any{
			"game":  g.Snapshot(),
			"timer": s.clock.viewOf(tr.timer),
		})
	}
}

// endGame credits experience and announces the result of a finished game.
func (s *AnswerService) endGame(ctx context.Context, tr *transition) {
	g := tr.game
	if err := s.clock.Stop(ctx, g.ID); err != nil {
		log.Warn().Err(err).Str("gameId", g.ID).Msg("Failed to stop timer")
	}
	if err := s.clock.store.ClearGame(ctx, g.ID); err != nil {
		log.Warn().Err(err).Str("gameId", g.ID).Msg("Failed to clear timer state")
	}

	rewards := s.rules.Rewards(g.GameMode, tr.verdict)
	experience := make(map[string]int, 2)
	for _, slot := range []battle.Slot{battle.PlayerOne, battle.PlayerTwo} {
		userID := g.PlayerID(slot)
		amount := rewards[slot-1]
		if userID == "" || amount <= 0 {
			continue
		}
		experience[userID] = amount
		if err := s.xp.AddExperience(ctx, userID, amount, g.ID); err != nil {
			log.Error().Err(err).Str("gameId", g.ID).Str("userId", userID).Msg("Failed to award experience")
		}
	}

	s.broadcaster.BroadcastGameEvent(g.ID, model.EventTimerStopped, map[string]any{
		"game": g.Snapshot(),
	})
	s.broadcaster.BroadcastGameEvent(g.ID, model.EventGameEnded, map[string]any{
		"game":       g.Snapshot(),
		"reason":     g.EndReason,
		"outcome":    tr.verdict.Outcome,
		"winner_id":  g.WinnerID,
		"experience": experience,
	})
}

func (tr *transition) result() *AnswerResult {
	if tr == nil {
		return nil
	}
	return &AnswerResult{
		Game:        tr.game.Snapshot(),
		PlayerID:    tr.playerID,
		Correct:     tr.delta.Correct,
		DamageDealt: tr.delta.DamageDealt,
		DamageTaken: tr.delta.DamageTaken,
		ScoreGained: tr.delta.ScoreGained,
		Stats:       tr.stats,
		TimedOut:    tr.timeout,
		InGrace:     tr.inGrace,
		GameOver:    tr.verdict.Ended,
	}
}
