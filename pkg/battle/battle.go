// Package battle holds the pure rules of a two-player quiz battle: damage and
// score deltas, win conditions, experience rewards and per-question timing.
// Nothing in this package performs I/O.
package battle

// Mode is the top-level game mode.
type Mode string

const (
	ModePvE Mode = "pve"
	ModePvP Mode = "pvp"
)

// PvPMode selects the win rule of a player-versus-player game.
type PvPMode string

const (
	PvPAccuracy PvPMode = "accuracy"
	PvPHP       PvPMode = "hp"
)

// Slot identifies a participant by seat. Zero means "nobody".
type Slot int

const (
	NoSlot    Slot = 0
	PlayerOne Slot = 1
	PlayerTwo Slot = 2
)

// Other returns the opposing seat.
func (s Slot) Other() Slot {
	switch s {
	case PlayerOne:
		return PlayerTwo
	case PlayerTwo:
		return PlayerOne
	}
	return NoSlot
}

// Valid reports whether s names a real seat.
func (s Slot) Valid() bool {
	return s == PlayerOne || s == PlayerTwo
}

func (s Slot) index() int { return int(s) - 1 }

// End reasons recorded on a finished game.
const (
	ReasonScoreLimit      = "score_limit"
	ReasonNoMoreQuestions = "no_more_questions"
	ReasonForfeit         = "forfeit"
	ReasonNoQuizzesFound  = "no_quizzes_found"
	ReasonTimeout         = "timeout"
	ReasonInactivity      = "inactivity"
)

// Outcome classifies how a game ended for reward purposes.
type Outcome string

const (
	OutcomeNone            Outcome = ""
	OutcomeWin             Outcome = "win"
	OutcomeDraw            Outcome = "draw"
	OutcomeMonsterDefeated Outcome = "monster_defeated"
	OutcomeMutualLoss      Outcome = "mutual_loss"
)

// State is the combat snapshot the rules operate on.
type State struct {
	Mode    Mode
	PvPMode PvPMode

	MonsterHP     int
	MonsterMaxHP  int
	MonsterAttack int

	HP    [2]int
	MaxHP int
	Score [2]int
	Stats [2]Stats

	// QuestionPool is the number of distinct questions both players share.
	QuestionPool int
}

// HPOf returns the hit points of a seat.
func (s State) HPOf(slot Slot) int { return s.HP[slot.index()] }

// ScoreOf returns the score of a seat.
func (s State) ScoreOf(slot Slot) int { return s.Score[slot.index()] }

// StatsOf returns the answer statistics of a seat.
func (s State) StatsOf(slot Slot) Stats { return s.Stats[slot.index()] }

// Answered returns how many questions of the pool have been consumed.
func (s State) Answered() int {
	return s.Stats[0].TotalQuestions + s.Stats[1].TotalQuestions
}

// PoolExhausted reports whether every question in the pool has been used.
func (s State) PoolExhausted() bool {
	return s.QuestionPool > 0 && s.Answered() >= s.QuestionPool
}

// Delta describes what a single answer did.
type Delta struct {
	Slot        Slot `json:"slot"`
	Correct     bool `json:"correct"`
	DamageDealt int  `json:"damage_dealt"`
	DamageTaken int  `json:"damage_taken"`
	ScoreGained int  `json:"score_gained"`
}

// Verdict is the result of a win-condition check.
type Verdict struct {
	Ended   bool
	Reason  string
	Outcome Outcome
	// Winner is the decisive seat, or NoSlot for draws and shared outcomes.
	Winner Slot
}

// Rand is the randomness source used for monster damage variance.
type Rand interface {
	IntN(n int) int
}
