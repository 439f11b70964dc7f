package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/pkg/battle"
)

// CreateGameInput describes a new game.
type CreateGameInput struct {
	GameMode     battle.Mode    `json:"game_mode"`
	PvPMode      battle.PvPMode `json:"pvp_mode"`
	FileID       string         `json:"file_id"`
	CollectionID string         `json:"collection_id"`
	MonsterID    string         `json:"monster_id"`
}

// LobbyService handles creating, joining and abandoning games.
type LobbyService struct {
	gameRepo    repository.GameRepository
	questions   repository.QuestionRepository
	monsters    repository.MonsterRepository
	clock       *GameClock
	answers     *AnswerService
	rules       battle.Rules
	broadcaster Broadcaster
	shuffle     func([]string)
}

// NewLobbyService creates a LobbyService.
func NewLobbyService(gameRepo repository.GameRepository, questions repository.QuestionRepository, monsters repository.MonsterRepository, clock *GameClock, answers *AnswerService, rules battle.Rules, broadcaster Broadcaster) *LobbyService {
	return &LobbyService{
		gameRepo:    gameRepo,
		questions:   questions,
		monsters:    monsters,
		clock:       clock,
		answers:     answers,
		rules:       rules,
		broadcaster: broadcaster,
		shuffle: func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
}

// SetShuffle replaces how a joined game's question pool is ordered.
func (s *LobbyService) SetShuffle(shuffle func([]string)) { s.shuffle = shuffle }

// CreateGame creates a new game in "waiting" status owned by creatorID.
func (s *LobbyService) CreateGame(ctx context.Context, creatorID string, in CreateGameInput) (*model.Game, error) {
	g := &model.Game{
		PlayerOneID:  creatorID,
		GameMode:     in.GameMode,
		FileID:       in.FileID,
		CollectionID: in.CollectionID,
		PlayerOneHP:  s.rules.StartingHP,
		PlayerTwoHP:  s.rules.StartingHP,
		MaxHP:        s.rules.StartingHP,
		CurrentTurn:  int(battle.PlayerOne),
	}

	switch in.GameMode {
	case battle.ModePvP:
		switch in.PvPMode {
		case "":
			g.PvPMode = battle.PvPAccuracy
		case battle.PvPAccuracy, battle.PvPHP:
			g.PvPMode = in.PvPMode
		default:
			return nil, ErrInvalidMode
		}
	case battle.ModePvE:
		if in.MonsterID == "" {
			return nil, ErrMonsterRequired
		}
	default:
		return nil, ErrInvalidMode
	}
	if (in.FileID == "") == (in.CollectionID == "") {
		return nil, ErrInvalidSource
	}

	if in.GameMode == battle.ModePvE {
		monster, err := s.monsters.FindByID(ctx, in.MonsterID)
		if err != nil {
			return nil, err
		}
		if monster == nil {
			return nil, ErrMonsterNotFound
		}
		g.MonsterID = monster.ID
		g.MonsterHP = monster.HP
		g.MonsterMaxHP = monster.HP
		g.MonsterAttack = monster.Attack
	}

	created, err := s.gameRepo.Create(ctx, g)
	if err != nil {
		return nil, err
	}
	log.Info().Str("gameId", created.ID).Str("userId", creatorID).Str("mode", string(created.GameMode)).Msg("Game created")
	s.broadcaster.BroadcastGameEvent(model.LobbyChannel, model.EventLobbyUpdate, map[string]any{
		"action": "created",
		"game":   created.Snapshot(),
	})
	return created, nil
}

// JoinGame seats userID as player two and starts the game. A source with no
// questions finishes the game immediately with no_quizzes_found.
func (s *LobbyService) JoinGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	existing, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrGameNotFound
	}
	questions, err := s.questions.ListBySource(ctx, existing.FileID, existing.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	var joined *model.Game
	var timer *model.TurnTimer
	err = s.gameRepo.WithLock(ctx, gameID, func(lg repository.LockedGame) error {
		g := lg.Game().Clone()
		switch {
		case g.Status != model.StatusWaiting:
			return ErrGameNotWaiting
		case g.PlayerOneID == userID:
			return ErrCannotJoinOwn
		case g.PlayerTwoID != "":
			return ErrGameFull
		}

		now := s.clock.Now()
		g.PlayerTwoID = userID
		g.StartedAt = &now
		g.LastActivityAt = &now

		if len(questions) == 0 {
			g.Status = model.StatusFinished
			g.EndReason = battle.ReasonNoQuizzesFound
			g.FinishedAt = &now
		} else {
			ids := make([]string, len(questions))
			for i, q := range questions {
				ids[i] = q.ID
			}
			s.shuffle(ids)
			g.QuestionIDs = ids
			g.Status = model.StatusActive
			g.CurrentTurn = int(battle.PlayerOne)
			g.CurrentQuestionIndex = 0
			g.TurnStartedAt = &now

			t := s.clock.NewTimer(g.ID, g.CurrentTurn, 0, findQuestion(questions, ids[0]))
			timer = &t
		}

		if err := lg.Save(ctx, g); err != nil {
			return err
		}
		joined = g
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("gameId", gameID).Str("userId", userID).Str("status", joined.Status).Msg("Player joined game")
	update := map[string]any{"action": "joined", "game": joined.Snapshot()}
	s.broadcaster.BroadcastGameEvent(gameID, model.EventLobbyUpdate, update)
	s.broadcaster.BroadcastGameEvent(model.LobbyChannel, model.EventLobbyUpdate, update)

	if timer == nil {
		s.broadcaster.BroadcastGameEvent(gameID, model.EventGameEnded, map[string]any{
			"game":   joined.Snapshot(),
			"reason": joined.EndReason,
		})
		return joined, nil
	}
	if err := s.clock.Arm(ctx, *timer); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to arm turn timer")
		return joined, nil
	}
	if err := s.clock.store.TouchActivity(ctx, gameID, s.clock.Now()); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to record activity")
	}
	s.broadcaster.BroadcastGameEvent(gameID, model.EventTimerStarted, map[string]any{
		"game":  joined.Snapshot(),
		"timer": s.clock.viewOf(timer),
	})
	return joined, nil
}

func findQuestion(questions []model.Question, id string) *model.Question {
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i]
		}
	}
	return nil
}

var errStillActive = errors.New("game is no longer waiting")

// AbandonGame withdraws userID from a game. The creator may cancel a waiting
// game; either player may concede an active one, which forfeits it.
func (s *LobbyService) AbandonGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	var abandoned *model.Game
	err := s.gameRepo.WithLock(ctx, gameID, func(lg repository.LockedGame) error {
		g := lg.Game().Clone()
		if g.Status != model.StatusWaiting {
			return errStillActive
		}
		if g.PlayerOneID != userID {
			return ErrNotInGame
		}
		now := s.clock.Now()
		g.Status = model.StatusAbandoned
		g.FinishedAt = &now
		if err := lg.Save(ctx, g); err != nil {
			return err
		}
		abandoned = g
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrGameNotFound
	case errors.Is(err, errStillActive):
		forfeited, err := s.answers.Forfeit(ctx, gameID, userID, battle.ReasonForfeit)
		if err != nil {
			return nil, err
		}
		if forfeited == nil {
			return nil, ErrCannotAbandon
		}
		return forfeited, nil
	case err != nil:
		return nil, err
	}

	log.Info().Str("gameId", gameID).Str("userId", userID).Msg("Game abandoned")
	update := map[string]any{"action": "abandoned", "game": abandoned.Snapshot()}
	s.broadcaster.BroadcastGameEvent(gameID, model.EventLobbyUpdate, update)
	s.broadcaster.BroadcastGameEvent(model.LobbyChannel, model.EventLobbyUpdate, update)
	return abandoned, nil
}

// GetGame returns a game by ID.
func (s *LobbyService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	g, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// ListOpenGames returns games waiting for a second player.
func (s *LobbyService) ListOpenGames(ctx context.Context) ([]model.Game, error) {
	return s.gameRepo.ListOpen(ctx)
}

// TimerState returns the countdown of a game's current turn.
func (s *LobbyService) TimerState(ctx context.Context, gameID string) (TimerView, error) {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return TimerView{}, err
	}
	return s.clock.View(ctx, gameID)
}
