package db

import (
	"context"
	"database/sql"
	"time"
)

// Store is the explicitly constructed persistence layer. It implements
// cache.Durable for the durable response-cache tier and ledger.Store for
// credit accounts and consumption records.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open connection.
func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.DB.Close() }

// GetEntry returns a cached payload and its creation time. Freshness is the
// caller's concern; expired rows are simply reported as found with their age.
func (s *Store) GetEntry(ctx context.Context, namespace, key string) ([]byte, time.Time, bool, error) {
	var payload string
	var createdAt time.Time
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload, created_at FROM cache_entries WHERE namespace=$1 AND key=$2`,
		namespace, key).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return []byte(payload), createdAt, true, nil
}

// PutEntry upserts a cache row. Last write wins on concurrent fills of the
// same key, which callers tolerate.
func (s *Store) PutEntry(ctx context.Context, namespace, key string, payload []byte, createdAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, payload, created_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (namespace, key) DO UPDATE SET payload=EXCLUDED.payload, created_at=EXCLUDED.created_at`,
		namespace, key, string(payload), createdAt)
	return err
}

// GetAccount loads an account row; ok is false when the user has never been seen.
func (s *Store) GetAccount(ctx context.Context, userID int64) (balance int, resetAt time.Time, exempt bool, ok bool, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT balance, reset_at, exempt FROM credit_accounts WHERE user_id=$1`,
		userID).Scan(&balance, &resetAt, &exempt)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, false, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, false, err
	}
	return balance, resetAt, exempt, true, nil
}

// PutAccount upserts an account row.
func (s *Store) PutAccount(ctx context.Context, userID int64, balance int, resetAt time.Time, exempt bool) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO credit_accounts (user_id, balance, reset_at, exempt, updated_at) VALUES ($1,$2,$3,$4,NOW())
		 ON CONFLICT (user_id) DO UPDATE SET balance=EXCLUDED.balance, reset_at=EXCLUDED.reset_at, exempt=EXCLUDED.exempt, updated_at=NOW()`,
		userID, balance, resetAt, exempt)
	return err
}

// SeenConsumption reports whether (user, video) has already been paid for.
func (s *Store) SeenConsumption(ctx context.Context, userID int64, videoID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM consumption_records WHERE user_id=$1 AND video_id=$2`,
		userID, videoID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordConsumption inserts the (user, video) pair; repeats are a no-op so the
// at-most-one-record invariant holds.
func (s *Store) RecordConsumption(ctx context.Context, userID int64, videoID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO consumption_records (user_id, video_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		userID, videoID)
	return err
}
