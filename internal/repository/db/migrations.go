package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateUp applies all pending schema migrations from migrationsURL.
// An already up-to-date schema is not an error.
func MigrateUp(db *sql.DB, migrationsURL string) error {
	log.Println("Applying schema migrations from:", migrationsURL)
	if err := runMigrations(db, migrationsURL, (*migrate.Migrate).Up); err != nil {
		return fmt.Errorf("db.MigrateUp: %w", err)
	}
	return nil
}

// MigrateDown reverts every applied migration, dropping the schema.
func MigrateDown(db *sql.DB, migrationsURL string) error {
	log.Println("Reverting schema migrations from:", migrationsURL)
	if err := runMigrations(db, migrationsURL, (*migrate.Migrate).Down); err != nil {
		return fmt.Errorf("db.MigrateDown: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB, migrationsURL string, step func(*migrate.Migrate) error) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return err
	}

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
