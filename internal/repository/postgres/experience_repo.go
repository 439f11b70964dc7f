package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// ExperienceRepo credits experience to users.
type ExperienceRepo struct {
	db *sql.DB
}

// NewExperienceRepo creates an ExperienceRepo.
func NewExperienceRepo(db *sql.DB) *ExperienceRepo {
	return &ExperienceRepo{db: db}
}

// AddExperience credits amount to userID for gameID. Repeated awards for the
// same user and game are ignored.
func (r *ExperienceRepo) AddExperience(ctx context.Context, userID string, amount int, gameID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO experience_awards (user_id, game_id, amount) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, game_id) DO NOTHING`,
		userID, gameID, amount)
	if err != nil {
		return fmt.Errorf("log experience: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_experience (user_id, experience) VALUES ($1, $2)
		 ON CONFLICT (user_id)
		 DO UPDATE SET experience = user_experience.experience + EXCLUDED.experience, updated_at = now()`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("add experience: %w", err)
	}
	return tx.Commit()
}

// Total returns the experience credited to userID.
func (r *ExperienceRepo) Total(ctx context.Context, userID string) (int, error) {
	var xp int
	err := r.db.QueryRowContext(ctx,
		`SELECT experience FROM user_experience WHERE user_id = $1`, userID,
	).Scan(&xp)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find experience: %w", err)
	}
	return xp, nil
}
