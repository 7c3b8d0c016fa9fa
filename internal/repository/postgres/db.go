package postgres

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"billscope/internal/config"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(cfg *config.DBConfig) (*sqlx.DB, error) {
	return Open(cfg.DSN(), cfg.MaxOpen, cfg.MaxIdle)
}

// Open connects to dsn and applies pool limits. Zero limits keep driver defaults.
func Open(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	return db, nil
}

// Ping reports whether the database is reachable.
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}
