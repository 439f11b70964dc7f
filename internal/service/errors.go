package service

import (
	"errors"
	"fmt"

	"github.com/freeeve/quizbattle/internal/model"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameNotWaiting  = errors.New("game is not in waiting status")
	ErrGameFull        = errors.New("game already has two players")
	ErrCannotJoinOwn   = errors.New("you cannot join your own game")
	ErrNotInGame       = errors.New("you are not in this game")
	ErrInvalidMode     = errors.New("invalid game mode")
	ErrInvalidSource   = errors.New("exactly one of file_id and collection_id is required")
	ErrMonsterRequired = errors.New("pve games require a monster")
	ErrMonsterNotFound = errors.New("monster not found")
	ErrCannotAbandon   = errors.New("game cannot be abandoned")
)

// RejectCode classifies a refused answer submission.
type RejectCode string

const (
	RejectNotParticipant  RejectCode = "not_participant"
	RejectGameNotActive   RejectCode = "game_not_active"
	RejectMissingOpponent RejectCode = "missing_opponent"
	RejectNotYourTurn     RejectCode = "not_your_turn"
	RejectGameOver        RejectCode = "game_over"
	RejectWrongQuestion   RejectCode = "wrong_question"
	RejectTurnExpired     RejectCode = "turn_expired"
)

// RejectionError reports an answer that was refused without touching the
// game. Game holds the state the caller should reconcile against.
type RejectionError struct {
	Code RejectCode
	Game *model.GameSnapshot
}

func (e *RejectionError) Error() string {
	switch e.Code {
	case RejectNotParticipant:
		return "you are not a participant in this game"
	case RejectGameNotActive:
		return "game is not active"
	case RejectMissingOpponent:
		return "waiting for a second player"
	case RejectNotYourTurn:
		return "it is not your turn"
	case RejectGameOver:
		return "game is already over"
	case RejectWrongQuestion:
		return "answer is for a different question"
	case RejectTurnExpired:
		return "time ran out for this turn"
	}
	return fmt.Sprintf("answer rejected: %s", e.Code)
}

func reject(code RejectCode, g *model.Game) *RejectionError {
	e := &RejectionError{Code: code}
	if g != nil {
		snap := g.Snapshot()
		e.Game = &snap
	}
	return e
}

// RejectCodeOf returns the code of a *RejectionError anywhere in err's chain.
func RejectCodeOf(err error) (RejectCode, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Code, true
	}
	return "", false
}
