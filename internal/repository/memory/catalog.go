package memory

import (
	"context"
	"sync"

	"github.com/freeeve/quizbattle/internal/model"
)

// QuestionRepo serves a fixed set of questions.
type QuestionRepo struct {
	questions []model.Question
}

// NewQuestionRepo creates a QuestionRepo over questions.
func NewQuestionRepo(questions []model.Question) *QuestionRepo {
	return &QuestionRepo{questions: questions}
}

func (r *QuestionRepo) ListBySource(_ context.Context, fileID, collectionID string) ([]model.Question, error) {
	var out []model.Question
	for _, q := range r.questions {
		if (fileID != "" && q.FileID == fileID) || (collectionID != "" && q.CollectionID == collectionID) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *QuestionRepo) FindByID(_ context.Context, id string) (*model.Question, error) {
	for _, q := range r.questions {
		if q.ID == id {
			cp := q
			return &cp, nil
		}
	}
	return nil, nil
}

// MonsterRepo serves a fixed set of monsters.
type MonsterRepo struct {
	monsters map[string]model.Monster
}

// NewMonsterRepo creates a MonsterRepo over monsters.
func NewMonsterRepo(monsters ...model.Monster) *MonsterRepo {
	m := make(map[string]model.Monster, len(monsters))
	for _, mon := range monsters {
		m[mon.ID] = mon
	}
	return &MonsterRepo{monsters: m}
}

func (r *MonsterRepo) FindByID(_ context.Context, id string) (*model.Monster, error) {
	mon, ok := r.monsters[id]
	if !ok {
		return nil, nil
	}
	return &mon, nil
}

// ExperienceLedger accumulates awarded experience per user. A user is
// credited at most once per game.
type ExperienceLedger struct {
	mu      sync.Mutex
	totals  map[string]int
	awarded map[[2]string]bool
}

// NewExperienceLedger creates an empty ledger.
func NewExperienceLedger() *ExperienceLedger {
	return &ExperienceLedger{totals: make(map[string]int), awarded: make(map[[2]string]bool)}
}

func (l *ExperienceLedger) AddExperience(_ context.Context, userID string, amount int, gameID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := [2]string{userID, gameID}
	if l.awarded[key] {
		return nil
	}
	l.awarded[key] = true
	l.totals[userID] += amount
	return nil
}

// Total returns the experience credited to userID so far.
func (l *ExperienceLedger) Total(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[userID]
}
