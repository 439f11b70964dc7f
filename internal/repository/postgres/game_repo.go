package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository"
	"github.com/freeeve/quizbattle/pkg/battle"
)

const gameColumns = `id, player_one_id, player_two_id, game_mode, pvp_mode, file_id, collection_id,
	monster_id, monster_hp, monster_max_hp, monster_attack,
	player_one_hp, player_two_hp, max_hp, player_one_score, player_two_score,
	player_one_correct_answers, player_one_total_questions, player_one_accuracy, player_one_streak, player_one_max_streak,
	player_two_correct_answers, player_two_total_questions, player_two_accuracy, player_two_streak, player_two_max_streak,
	current_turn, question_ids, current_question_index, status, winner_id, game_end_reason,
	turn_started_at, last_activity_at, created_at, started_at, finished_at`

// GameRepo handles multiplayer_games database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*model.Game, error) {
	var g model.Game
	var playerTwo, pvpMode, fileID, collectionID, monsterID, winner, reason sql.NullString
	var gameMode string
	p1, p2 := &g.PlayerOneStats, &g.PlayerTwoStats
	err := row.Scan(&g.ID, &g.PlayerOneID, &playerTwo, &gameMode, &pvpMode, &fileID, &collectionID,
		&monsterID, &g.MonsterHP, &g.MonsterMaxHP, &g.MonsterAttack,
		&g.PlayerOneHP, &g.PlayerTwoHP, &g.MaxHP, &g.PlayerOneScore, &g.PlayerTwoScore,
		&p1.CorrectAnswers, &p1.TotalQuestions, &p1.Accuracy, &p1.Streak, &p1.MaxStreak,
		&p2.CorrectAnswers, &p2.TotalQuestions, &p2.Accuracy, &p2.Streak, &p2.MaxStreak,
		&g.CurrentTurn, pq.Array(&g.QuestionIDs), &g.CurrentQuestionIndex, &g.Status, &winner, &reason,
		&g.TurnStartedAt, &g.LastActivityAt, &g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	if err != nil {
		return nil, err
	}
	g.PlayerTwoID = playerTwo.String
	g.GameMode = battle.Mode(gameMode)
	g.PvPMode = battle.PvPMode(pvpMode.String)
	g.FileID = fileID.String
	g.CollectionID = collectionID.String
	g.MonsterID = monsterID.String
	g.WinnerID = winner.String
	g.EndReason = reason.String
	return &g, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// questionArray never returns NULL; question_ids is NOT NULL.
func questionArray(ids []string) any {
	return pq.Array(append([]string{}, ids...))
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create inserts a new game in waiting status.
func (r *GameRepo) Create(ctx context.Context, g *model.Game) (*model.Game, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO multiplayer_games (player_one_id, game_mode, pvp_mode, file_id, collection_id,
		        monster_id, monster_hp, monster_max_hp, monster_attack,
		        player_one_hp, player_two_hp, max_hp, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'waiting')
		 RETURNING `+gameColumns,
		g.PlayerOneID, string(g.GameMode), nullString(string(g.PvPMode)), nullString(g.FileID), nullString(g.CollectionID),
		nullString(g.MonsterID), g.MonsterHP, g.MonsterMaxHP, g.MonsterAttack,
		g.PlayerOneHP, g.PlayerTwoHP, g.MaxHP,
	)
	created, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return created, nil
}

// FindByID returns a game by ID, or nil if it does not exist.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	if !validID(id) {
		return nil, nil
	}
	g, err := scanGame(r.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM multiplayer_games WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	return g, nil
}

// ListOpen returns games in "waiting" status, newest first.
func (r *GameRepo) ListOpen(ctx context.Context) ([]model.Game, error) {
	return r.list(ctx, `SELECT `+gameColumns+` FROM multiplayer_games
		 WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
}

// ListActive returns every game in "active" status, oldest first.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	return r.list(ctx, `SELECT `+gameColumns+` FROM multiplayer_games
		 WHERE status = 'active' ORDER BY created_at`)
}

func (r *GameRepo) list(ctx context.Context, query string) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// WithLock loads the game with SELECT ... FOR UPDATE and runs fn inside the
// same transaction. The transaction commits only if fn returns nil.
func (r *GameRepo) WithLock(ctx context.Context, gameID string, fn func(repository.LockedGame) error) error {
	if !validID(gameID) {
		return repository.ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	g, err := scanGame(tx.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM multiplayer_games WHERE id = $1 FOR UPDATE`, gameID))
	if err == sql.ErrNoRows {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock game: %w", err)
	}

	if err := fn(&lockedGame{tx: tx, game: g}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit game: %w", err)
	}
	return nil
}

type lockedGame struct {
	tx   *sql.Tx
	game *model.Game
}

func (l *lockedGame) Game() *model.Game { return l.game }

// RecordAnswer updates one player's stat block in a single statement so the
// other player's columns are never rewritten.
func (l *lockedGame) RecordAnswer(ctx context.Context, slot battle.Slot, correct bool) (battle.Stats, error) {
	prefix := "player_one_"
	if slot == battle.PlayerTwo {
		prefix = "player_two_"
	}
	query := fmt.Sprintf(
		`UPDATE multiplayer_games SET
		    %[1]scorrect_answers = %[1]scorrect_answers + CASE WHEN $2::boolean THEN 1 ELSE 0 END,
		    %[1]stotal_questions = %[1]stotal_questions + 1,
		    %[1]saccuracy = ROUND((%[1]scorrect_answers + CASE WHEN $2::boolean THEN 1 ELSE 0 END)::numeric * 100 / (%[1]stotal_questions + 1), 2),
		    %[1]sstreak = CASE WHEN $2::boolean THEN %[1]sstreak + 1 ELSE 0 END,
		    %[1]smax_streak = GREATEST(%[1]smax_streak, CASE WHEN $2::boolean THEN %[1]sstreak + 1 ELSE 0 END),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING %[1]scorrect_answers, %[1]stotal_questions, %[1]saccuracy, %[1]sstreak, %[1]smax_streak`,
		prefix)

	var s battle.Stats
	err := l.tx.QueryRowContext(ctx, query, l.game.ID, correct).
		Scan(&s.CorrectAnswers, &s.TotalQuestions, &s.Accuracy, &s.Streak, &s.MaxStreak)
	if err != nil {
		return battle.Stats{}, fmt.Errorf("record answer: %w", err)
	}
	*l.game.StatsFor(slot) = s
	return s, nil
}

// Save writes the shared game columns. Player stat blocks are owned by
// RecordAnswer and are left untouched.
func (l *lockedGame) Save(ctx context.Context, g *model.Game) error {
	_, err := l.tx.ExecContext(ctx,
		`UPDATE multiplayer_games SET
		    player_two_id = $2, pvp_mode = $3,
		    monster_hp = $4, player_one_hp = $5, player_two_hp = $6,
		    player_one_score = $7, player_two_score = $8,
		    current_turn = $9, question_ids = $10, current_question_index = $11,
		    status = $12, winner_id = $13, game_end_reason = $14,
		    turn_started_at = $15, last_activity_at = $16, started_at = $17, finished_at = $18,
		    updated_at = now()
		 WHERE id = $1`,
		g.ID, nullString(g.PlayerTwoID), nullString(string(g.PvPMode)),
		g.MonsterHP, g.PlayerOneHP, g.PlayerTwoHP,
		g.PlayerOneScore, g.PlayerTwoScore,
		g.CurrentTurn, questionArray(g.QuestionIDs), g.CurrentQuestionIndex,
		g.Status, nullString(g.WinnerID), nullString(g.EndReason),
		g.TurnStartedAt, g.LastActivityAt, g.StartedAt, g.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	stats := l.game.PlayerOneStats
	statsTwo := l.game.PlayerTwoStats
	l.game = g.Clone()
	l.game.PlayerOneStats, l.game.PlayerTwoStats = stats, statsTwo
	return nil
}
