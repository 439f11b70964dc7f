// Package migrations holds the schema migrations applied by bun's migrator.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registered migration set.
var Migrations = migrate.NewMigrations()
