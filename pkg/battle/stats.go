package battle

import "math"

// Stats tracks one player's answer history within a game.
type Stats struct {
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	Accuracy       float64 `json:"accuracy"`
	Streak         int     `json:"streak"`
	MaxStreak      int     `json:"max_streak"`
}

// Record applies one answer to the counters. A timeout counts as incorrect.
func (s *Stats) Record(correct bool) {
	s.TotalQuestions++
	if correct {
		s.CorrectAnswers++
		s.Streak++
		if s.Streak > s.MaxStreak {
			s.MaxStreak = s.Streak
		}
	} else {
		s.Streak = 0
	}
	s.Accuracy = Accuracy(s.CorrectAnswers, s.TotalQuestions)
}

// Accuracy returns correct/total as a percentage rounded to two decimals.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}
