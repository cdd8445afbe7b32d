package testutil

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory stand-in for db.Store. It satisfies both
// ledger.Store and cache.Durable so unit tests run without Postgres.
type MemStore struct {
	mu       sync.Mutex
	accounts map[int64]memAccount
	consumed map[int64]map[string]bool
	entries  map[string]memCacheRow

	// Fail forces every method to return this error when set.
	Fail error
}

type memAccount struct {
	balance int
	resetAt time.Time
	exempt  bool
}

type memCacheRow struct {
	payload   []byte
	createdAt time.Time
}

// NewMemStore builds an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[int64]memAccount),
		consumed: make(map[int64]map[string]bool),
		entries:  make(map[string]memCacheRow),
	}
}

func (s *MemStore) GetAccount(_ context.Context, userID int64) (int, time.Time, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return 0, time.Time{}, false, false, s.Fail
	}
	a, ok := s.accounts[userID]
	if !ok {
		return 0, time.Time{}, false, false, nil
	}
	return a.balance, a.resetAt, a.exempt, true, nil
}

func (s *MemStore) PutAccount(_ context.Context, userID int64, balance int, resetAt time.Time, exempt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.accounts[userID] = memAccount{balance: balance, resetAt: resetAt, exempt: exempt}
	return nil
}

func (s *MemStore) SeenConsumption(_ context.Context, userID int64, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}
	return s.consumed[userID][videoID], nil
}

func (s *MemStore) RecordConsumption(_ context.Context, userID int64, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if s.consumed[userID] == nil {
		s.consumed[userID] = make(map[string]bool)
	}
	s.consumed[userID][videoID] = true
	return nil
}

func (s *MemStore) GetEntry(_ context.Context, namespace, key string) ([]byte, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, time.Time{}, false, s.Fail
	}
	row, ok := s.entries[namespace+":"+key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return row.payload, row.createdAt, true, nil
}

func (s *MemStore) PutEntry(_ context.Context, namespace, key string, payload []byte, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.entries[namespace+":"+key] = memCacheRow{payload: payload, createdAt: createdAt}
	return nil
}

// Balance reports the stored balance for assertions.
func (s *MemStore) Balance(userID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	return a.balance, ok
}

// Consumed reports whether (user, video) has a consumption record.
func (s *MemStore) Consumed(userID int64, videoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed[userID][videoID]
}

// EntryCount reports the number of durable cache rows.
func (s *MemStore) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
