package model

import (
	"time"

	"github.com/freeeve/quizbattle/pkg/battle"
)

// Game statuses. Waiting and active are the only non-terminal states.
const (
	StatusWaiting   = "waiting"
	StatusActive    = "active"
	StatusFinished  = "finished"
	StatusAbandoned = "abandoned"
	StatusForfeited = "forfeited"
)

// Game is a two-player multiplayer battle.
type Game struct {
	ID          string `json:"id"`
	PlayerOneID string `json:"player_one_id"`
	PlayerTwoID string `json:"player_two_id,omitempty"`

	GameMode battle.Mode    `json:"game_mode"`
	PvPMode  battle.PvPMode `json:"pvp_mode,omitempty"`

	// Exactly one of FileID and CollectionID is set.
	FileID       string `json:"file_id,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`

	MonsterID     string `json:"monster_id,omitempty"`
	MonsterHP     int    `json:"monster_hp"`
	MonsterMaxHP  int    `json:"monster_max_hp"`
	MonsterAttack int    `json:"monster_attack"`

	PlayerOneHP    int `json:"player_one_hp"`
	PlayerTwoHP    int `json:"player_two_hp"`
	MaxHP          int `json:"max_hp"`
	PlayerOneScore int `json:"player_one_score"`
	PlayerTwoScore int `json:"player_two_score"`

	PlayerOneStats battle.Stats `json:"player_one_stats"`
	PlayerTwoStats battle.Stats `json:"player_two_stats"`

	CurrentTurn          int      `json:"current_turn"`
	QuestionIDs          []string `json:"-"`
	CurrentQuestionIndex int      `json:"current_question_index"`

	Status    string `json:"status"`
	WinnerID  string `json:"winner_id,omitempty"`
	EndReason string `json:"game_end_reason,omitempty"`

	TurnStartedAt  *time.Time `json:"turn_started_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the game can no longer change.
func (g *Game) IsTerminal() bool {
	switch g.Status {
	case StatusFinished, StatusAbandoned, StatusForfeited:
		return true
	}
	return false
}

// SlotOf returns the seat userID occupies, or battle.NoSlot.
func (g *Game) SlotOf(userID string) battle.Slot {
	switch {
	case userID == "":
		return battle.NoSlot
	case userID == g.PlayerOneID:
		return battle.PlayerOne
	case userID == g.PlayerTwoID:
		return battle.PlayerTwo
	}
	return battle.NoSlot
}

// PlayerID returns the user seated at slot.
func (g *Game) PlayerID(slot battle.Slot) string {
	switch slot {
	case battle.PlayerOne:
		return g.PlayerOneID
	case battle.PlayerTwo:
		return g.PlayerTwoID
	}
	return ""
}

// StatsFor returns a pointer to the stat block of slot.
func (g *Game) StatsFor(slot battle.Slot) *battle.Stats {
	if slot == battle.PlayerTwo {
		return &g.PlayerTwoStats
	}
	return &g.PlayerOneStats
}

// CurrentQuestionID returns the question the turn holder must answer, or "".
func (g *Game) CurrentQuestionID() string {
	if g.CurrentQuestionIndex < 0 || g.CurrentQuestionIndex >= len(g.QuestionIDs) {
		return ""
	}
	return g.QuestionIDs[g.CurrentQuestionIndex]
}

// State projects the game onto the rules engine snapshot.
func (g *Game) State() battle.State {
	return battle.State{
		Mode:          g.GameMode,
		PvPMode:       g.PvPMode,
		MonsterHP:     g.MonsterHP,
		MonsterMaxHP:  g.MonsterMaxHP,
		MonsterAttack: g.MonsterAttack,
		HP:            [2]int{g.PlayerOneHP, g.PlayerTwoHP},
		MaxHP:         g.MaxHP,
		Score:         [2]int{g.PlayerOneScore, g.PlayerTwoScore},
		Stats:         [2]battle.Stats{g.PlayerOneStats, g.PlayerTwoStats},
		QuestionPool:  len(g.QuestionIDs),
	}
}

// ApplyCombat copies hit points and scores back from a rules snapshot.
func (g *Game) ApplyCombat(s battle.State) {
	g.MonsterHP = s.MonsterHP
	g.PlayerOneHP = s.HP[0]
	g.PlayerTwoHP = s.HP[1]
	g.PlayerOneScore = s.Score[0]
	g.PlayerTwoScore = s.Score[1]
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	cp := *g
	cp.QuestionIDs = append([]string(nil), g.QuestionIDs...)
	cp.TurnStartedAt = cloneTime(g.TurnStartedAt)
	cp.LastActivityAt = cloneTime(g.LastActivityAt)
	cp.StartedAt = cloneTime(g.StartedAt)
	cp.FinishedAt = cloneTime(g.FinishedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// GameSnapshot is the client-facing view sent with every event.
type GameSnapshot struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	GameMode             battle.Mode    `json:"game_mode"`
	PvPMode              battle.PvPMode `json:"pvp_mode,omitempty"`
	PlayerOneID          string         `json:"player_one_id"`
	PlayerTwoID          string         `json:"player_two_id,omitempty"`
	CurrentTurn          int            `json:"current_turn"`
	CurrentQuestionID    string         `json:"current_question_id,omitempty"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	TotalQuestions       int            `json:"total_questions"`
	MonsterHP            int            `json:"monster_hp"`
	MonsterMaxHP         int            `json:"monster_max_hp"`
	PlayerOneHP          int            `json:"player_one_hp"`
	PlayerTwoHP          int            `json:"player_two_hp"`
	MaxHP                int            `json:"max_hp"`
	PlayerOneScore       int            `json:"player_one_score"`
	PlayerTwoScore       int            `json:"player_two_score"`
	PlayerOneStats       battle.Stats   `json:"player_one_stats"`
	PlayerTwoStats       battle.Stats   `json:"player_two_stats"`
	WinnerID             string         `json:"winner_id,omitempty"`
	EndReason            string         `json:"game_end_reason,omitempty"`
}

// Snapshot returns the client-facing view of g.
func (g *Game) Snapshot() GameSnapshot {
	return GameSnapshot{
		ID:                   g.ID,
		Status:               g.Status,
		GameMode:             g.GameMode,
		PvPMode:              g.PvPMode,
		PlayerOneID:          g.PlayerOneID,
		PlayerTwoID:          g.PlayerTwoID,
		CurrentTurn:          g.CurrentTurn,
		CurrentQuestionID:    g.CurrentQuestionID(),
		CurrentQuestionIndex: g.CurrentQuestionIndex,
		TotalQuestions:       len(g.QuestionIDs),
		MonsterHP:            g.MonsterHP,
		MonsterMaxHP:         g.MonsterMaxHP,
		PlayerOneHP:          g.PlayerOneHP,
		PlayerTwoHP:          g.PlayerTwoHP,
		MaxHP:                g.MaxHP,
		PlayerOneScore:       g.PlayerOneScore,
		PlayerTwoScore:       g.PlayerTwoScore,
		PlayerOneStats:       g.PlayerOneStats,
		PlayerTwoStats:       g.PlayerTwoStats,
		WinnerID:             g.WinnerID,
		EndReason:            g.EndReason,
	}
}

// Question is the subset of quiz content the battle engine needs.
type Question struct {
	ID           string              `json:"id" yaml:"id"`
	FileID       string              `json:"file_id,omitempty" yaml:"file_id"`
	CollectionID string              `json:"collection_id,omitempty" yaml:"collection_id"`
	Type         battle.QuestionType `json:"type" yaml:"type"`
	AnswerCount  int                 `json:"answer_count" yaml:"answer_count"`
}

// Monster is a PvE opponent.
type Monster struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	HP     int    `json:"hp" yaml:"hp"`
	Attack int    `json:"attack" yaml:"attack"`
}

// TurnTimer is the countdown for the question currently being answered.
type TurnTimer struct {
	GameID        string        `json:"game_id"`
	Turn          int           `json:"turn"`
	QuestionIndex int           `json:"question_index"`
	QuestionID    string        `json:"question_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Elapsed returns how long the timer has been running at now.
func (t *TurnTimer) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.StartedAt)
}

// Remaining returns the nominal time left at now, never negative.
func (t *TurnTimer) Remaining(now time.Time) time.Duration {
	left := t.Duration - t.Elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// Event types published to game subscribers.
const (
	EventTimerStarted    = "timer_started"
	EventTimerWarning    = "timer_warning"
	EventTimerTimeout    = "timer_timeout"
	EventTimerStopped    = "timer_stopped"
	EventAnswerSubmitted = "answer_submitted"
	EventGameEnded       = "game_ended"
	EventLobbyUpdate     = "lobby_update"
)

// LobbyChannel is the pseudo game id lobby listeners subscribe to.
const LobbyChannel = "lobby"

// Event is the envelope carried over every transport.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	GameID string    `json:"game_id"`
	Data   any       `json:"data"`
	SentAt time.Time `json:"sent_at"`
}
