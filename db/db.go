// Package db provides database connection helpers, schema migration, and the
// Store type backing the durable cache tier and the credit ledger.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database dsn")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credit_accounts (
			user_id BIGINT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			reset_at TIMESTAMPTZ NOT NULL,
			exempt BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS consumption_records (
			user_id BIGINT NOT NULL,
			video_id TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (user_id, video_id)
		)`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			payload TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_created ON cache_entries(namespace, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_consumption_user ON consumption_records(user_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
