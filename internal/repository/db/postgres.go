package db

import (
	"database/sql"
	"fmt"
	"log"
	"repairmarket/internal/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB opens and pings a postgres connection pool.
func NewPostgresDB(cfg *config.PostgresConfig) (*sql.DB, error) {
	log.Println("Opening postgres pool:", cfg.Conn)

	pool, err := sql.Open("postgres", cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}
	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	return pool, nil
}
