package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0001_create_battle_tables.up.sql
var createBattleTablesSQL string

//go:embed 0001_create_battle_tables.down.sql
var dropBattleTablesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createBattleTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, dropBattleTablesSQL)
			return err
		},
	)
}
