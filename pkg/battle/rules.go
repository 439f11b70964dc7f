package battle

import "math"

// Rules holds the game-balance tunables. The zero value is not usable; start
// from DefaultRules and override what the deployment needs.
type Rules struct {
	StartingHP int `yaml:"starting_hp"`

	CorrectDamagePvE int `yaml:"correct_damage_pve"`
	CorrectDamagePvP int `yaml:"correct_damage_pvp"`
	SelfDamagePvP    int `yaml:"self_damage_pvp"`
	ScorePerCorrect  int `yaml:"score_per_correct"`
	MonsterVariance  int `yaml:"monster_variance"`

	// Accuracy games end early once both players have answered at least
	// EarlyStopMinAnswers questions and their accuracy differs by EarlyStopGap points.
	EarlyStopMinAnswers int     `yaml:"early_stop_min_answers"`
	EarlyStopGap        float64 `yaml:"early_stop_gap"`

	XP XPTable `yaml:"xp"`
}

// XPTable lists the experience granted when a game ends.
type XPTable struct {
	PvPWin  int `yaml:"pvp_win"`
	PvPLoss int `yaml:"pvp_loss"`
	PvPDraw int `yaml:"pvp_draw"`

	PvEMonsterDefeated int `yaml:"pve_monster_defeated"`
	PvEMutualLoss      int `yaml:"pve_mutual_loss"`
	PvEWinner          int `yaml:"pve_winner"`
	PvELoser           int `yaml:"pve_loser"`
}

// DefaultRules returns the standard balance values.
func DefaultRules() Rules {
	return Rules{
		StartingHP:          100,
		CorrectDamagePvE:    10,
		CorrectDamagePvP:    15,
		SelfDamagePvP:       5,
		ScorePerCorrect:     10,
		MonsterVariance:     5,
		EarlyStopMinAnswers: 10,
		EarlyStopGap:        30,
		XP: XPTable{
			PvPWin:             50,
			PvPLoss:            25,
			PvPDraw:            35,
			PvEMonsterDefeated: 40,
			PvEMutualLoss:      20,
			PvEWinner:          40,
			PvELoser:           20,
		},
	}
}

// Resolve applies one answer by slot to s and returns the new state together
// with what changed. Stats are not touched here; they are recorded separately
// so the two players' counters never share a write path.
func (r Rules) Resolve(s State, slot Slot, correct bool, rng Rand) (State, Delta) {
	d := Delta{Slot: slot, Correct: correct}
	me := slot.index()
	them := slot.Other().index()

	switch {
	case s.Mode == ModePvE && correct:
		d.DamageDealt = r.CorrectDamagePvE
		d.ScoreGained = r.ScorePerCorrect
		s.MonsterHP = clamp(s.MonsterHP-d.DamageDealt, s.MonsterMaxHP)
	case s.Mode == ModePvE:
		d.DamageTaken = r.monsterDamage(s.MonsterAttack, rng)
		s.HP[me] = clamp(s.HP[me]-d.DamageTaken, s.MaxHP)
	case s.PvPMode == PvPHP && correct:
		d.DamageDealt = r.CorrectDamagePvP
		d.ScoreGained = r.ScorePerCorrect
		s.HP[them] = clamp(s.HP[them]-d.DamageDealt, s.MaxHP)
	case s.PvPMode == PvPHP:
		d.DamageTaken = r.SelfDamagePvP
		s.HP[me] = clamp(s.HP[me]-d.DamageTaken, s.MaxHP)
	case correct:
		d.ScoreGained = r.ScorePerCorrect
	}
	s.Score[me] += d.ScoreGained
	return s, d
}

func (r Rules) monsterDamage(attack int, rng Rand) int {
	dmg := attack
	if r.MonsterVariance > 0 && rng != nil {
		dmg += rng.IntN(2*r.MonsterVariance+1) - r.MonsterVariance
	}
	if dmg < 0 {
		return 0
	}
	return dmg
}

// Evaluate checks the win conditions on a post-answer snapshot.
func (r Rules) Evaluate(s State) Verdict {
	switch {
	case s.Mode == ModePvE:
		return r.evaluatePvE(s)
	case s.PvPMode == PvPHP:
		return r.evaluateHP(s)
	default:
		return r.evaluateAccuracy(s)
	}
}

func (r Rules) evaluatePvE(s State) Verdict {
	p1Down := s.HP[0] <= 0
	p2Down := s.HP[1] <= 0
	switch {
	case s.MonsterHP <= 0:
		return Verdict{Ended: true, Reason: ReasonScoreLimit, Outcome: OutcomeMonsterDefeated}
	case p1Down && p2Down:
		return Verdict{Ended: true, Reason: ReasonScoreLimit, Outcome: OutcomeMutualLoss}
	case p1Down:
		return Verdict{Ended: true, Reason: ReasonScoreLimit, Outcome: OutcomeWin, Winner: PlayerTwo}
	case p2Down:
		return Verdict{Ended: true, Reason: ReasonScoreLimit, Outcome: OutcomeWin, Winner: PlayerOne}
	case s.PoolExhausted():
		return Verdict{Ended: true, Reason: ReasonNoMoreQuestions, Outcome: OutcomeMutualLoss}
	}
	return Verdict{}
}

func (r Rules) evaluateHP(s State) Verdict {
	switch {
	case s.HP[0] <= 0 || s.HP[1] <= 0:
		return decide(ReasonScoreLimit, float64(s.HP[0]), float64(s.HP[1]))
	case s.PoolExhausted():
		return decide(ReasonNoMoreQuestions, float64(s.HP[0]), float64(s.HP[1]))
	}
	return Verdict{}
}

func (r Rules) evaluateAccuracy(s State) Verdict {
	a1 := s.Stats[0].Accuracy
	a2 := s.Stats[1].Accuracy
	if s.PoolExhausted() {
		return decide(ReasonNoMoreQuestions, a1, a2)
	}
	minAnswers := r.EarlyStopMinAnswers
	if minAnswers > 0 &&
		s.Stats[0].TotalQuestions >= minAnswers &&
		s.Stats[1].TotalQuestions >= minAnswers &&
		math.Abs(a1-a2) >= r.EarlyStopGap {
		return decide(ReasonScoreLimit, a1, a2)
	}
	return Verdict{}
}

// decide picks the seat with the higher measure; equal measures draw.
func decide(reason string, p1, p2 float64) Verdict {
	v := Verdict{Ended: true, Reason: reason, Outcome: OutcomeWin}
	switch {
	case p1 > p2:
		v.Winner = PlayerOne
	case p2 > p1:
		v.Winner = PlayerTwo
	default:
		v.Outcome = OutcomeDraw
	}
	return v
}

// Forfeit returns the verdict for a game conceded by loser.
func Forfeit(loser Slot, reason string) Verdict {
	return Verdict{Ended: true, Reason: reason, Outcome: OutcomeWin, Winner: loser.Other()}
}

// Rewards returns the experience earned by player one and player two.
func (r Rules) Rewards(mode Mode, v Verdict) [2]int {
	xp := r.XP
	if !v.Ended {
		return [2]int{}
	}
	if mode == ModePvE {
		switch v.Outcome {
		case OutcomeMonsterDefeated:
			return [2]int{xp.PvEMonsterDefeated, xp.PvEMonsterDefeated}
		case OutcomeWin:
			return split(v.Winner, xp.PvEWinner, xp.PvELoser)
		default:
			return [2]int{xp.PvEMutualLoss, xp.PvEMutualLoss}
		}
	}
	if v.Outcome == OutcomeWin && v.Winner.Valid() {
		return split(v.Winner, xp.PvPWin, xp.PvPLoss)
	}
	return [2]int{xp.PvPDraw, xp.PvPDraw}
}

func split(winner Slot, win, loss int) [2]int {
	out := [2]int{loss, loss}
	out[winner.index()] = win
	return out
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}
