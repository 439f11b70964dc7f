package battle

import (
	"sort"
	"time"
)

// QuestionType is the kind of quiz question being answered.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionIdentification QuestionType = "identification"
	QuestionEnumeration    QuestionType = "enumeration"
)

// Timing holds the per-turn clock settings.
type Timing struct {
	BaseDuration time.Duration `yaml:"base_duration"`
	// PerItem is the time allowed for each expected item of an enumeration question.
	PerItem     time.Duration `yaml:"per_item"`
	GracePeriod time.Duration `yaml:"grace_period"`
	// InactivityTimeout forfeits a game that has seen no answer or timeout for this long.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	// StuckMargin is added on top of duration+grace before a lost timer is force-resolved.
	StuckMargin time.Duration `yaml:"stuck_margin"`
}

// DefaultTiming returns the standard clock settings.
func DefaultTiming() Timing {
	return Timing{
		BaseDuration:      30 * time.Second,
		PerItem:           30 * time.Second,
		GracePeriod:       5 * time.Second,
		InactivityTimeout: 2 * time.Minute,
		StuckMargin:       30 * time.Second,
	}
}

// Duration returns the answer window for a question.
func (t Timing) Duration(qt QuestionType, answerCount int) time.Duration {
	if qt != QuestionEnumeration {
		return t.BaseDuration
	}
	scaled := time.Duration(answerCount) * t.PerItem
	if scaled > t.BaseDuration {
		return scaled
	}
	return t.BaseDuration
}

// WarningCheckpoints returns the remaining-seconds marks at which a warning
// is sent for a timer of length d, largest first.
func WarningCheckpoints(d time.Duration) []int {
	points := []int{3, 2, 1}
	if d >= 30*time.Second {
		points = append(points, 10, 5)
	}
	if d >= 60*time.Second {
		points = append(points, 30, 15)
	}
	if d >= 120*time.Second {
		points = append(points, 60)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(points)))
	return points
}
