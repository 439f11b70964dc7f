package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/pkg/battle"
)

// QuestionRepo reads the quiz_questions table.
type QuestionRepo struct {
	db *sql.DB
}

// NewQuestionRepo creates a QuestionRepo.
func NewQuestionRepo(db *sql.DB) *QuestionRepo {
	return &QuestionRepo{db: db}
}

// ListBySource returns the questions of a file or of a collection.
func (r *QuestionRepo) ListBySource(ctx context.Context, fileID, collectionID string) ([]model.Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_id, collection_id, question_type, answer_count
		 FROM quiz_questions
		 WHERE ($1::text <> '' AND file_id = $1) OR ($2::text <> '' AND collection_id = $2)
		 ORDER BY created_at, id`,
		fileID, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// FindByID returns a question, or nil if it does not exist.
func (r *QuestionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(r.db.QueryRowContext(ctx,
		`SELECT id, file_id, collection_id, question_type, answer_count
		 FROM quiz_questions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}
	return q, nil
}

// Upsert inserts a question or replaces its type and answer count.
func (r *QuestionRepo) Upsert(ctx context.Context, q model.Question) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO quiz_questions (id, file_id, collection_id, question_type, answer_count)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET question_type = EXCLUDED.question_type, answer_count = EXCLUDED.answer_count`,
		q.ID, nullString(q.FileID), nullString(q.CollectionID), string(q.Type), q.AnswerCount)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	return nil
}

func scanQuestion(row rowScanner) (*model.Question, error) {
	var q model.Question
	var fileID, collectionID sql.NullString
	var qt string
	if err := row.Scan(&q.ID, &fileID, &collectionID, &qt, &q.AnswerCount); err != nil {
		return nil, err
	}
	q.FileID = fileID.String
	q.CollectionID = collectionID.String
	q.Type = battle.QuestionType(qt)
	return &q, nil
}

// MonsterRepo reads the monsters table.
type MonsterRepo struct {
	db *sql.DB
}

// NewMonsterRepo creates a MonsterRepo.
func NewMonsterRepo(db *sql.DB) *MonsterRepo {
	return &MonsterRepo{db: db}
}

// FindByID returns a monster, or nil if it does not exist.
func (r *MonsterRepo) FindByID(ctx context.Context, id string) (*model.Monster, error) {
	var m model.Monster
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, hp, attack FROM monsters WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.HP, &m.Attack)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find monster: %w", err)
	}
	return &m, nil
}

// Upsert inserts a monster or replaces its stats.
func (r *MonsterRepo) Upsert(ctx context.Context, m model.Monster) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO monsters (id, name, hp, attack) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, hp = EXCLUDED.hp, attack = EXCLUDED.attack`,
		m.ID, m.Name, m.HP, m.Attack)
	if err != nil {
		return fmt.Errorf("upsert monster: %w", err)
	}
	return nil
}
