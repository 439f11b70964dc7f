package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"

	"github.com/freeeve/quizbattle/internal/repository/postgres/migrations"
)

// Connect opens a connection pool to the PostgreSQL database.
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// Migrate applies every pending schema migration. The bun handle shares the
// pool with db and is deliberately not closed.
func Migrate(ctx context.Context, db *sql.DB) error {
	bdb := bun.NewDB(db, pgdialect.New())
	migrator := migrate.NewMigrator(bdb, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.Info().Msg("No new migrations to run")
		return nil
	}
	log.Info().Str("group", group.String()).Msg("Migrations applied")
	return nil
}

// Rollback reverts the most recently applied migration group.
func Rollback(ctx context.Context, db *sql.DB) error {
	bdb := bun.NewDB(db, pgdialect.New())
	migrator := migrate.NewMigrator(bdb, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if group.IsZero() {
		log.Info().Msg("No migrations to roll back")
		return nil
	}
	log.Info().Str("group", group.String()).Msg("Migrations rolled back")
	return nil
}
