package pg

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.Down(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// MigrationStatus prints the state of every known migration.
func (s *Store) MigrationStatus() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.Status(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	return nil
}

func prepareGoose() error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}
