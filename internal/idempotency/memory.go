package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

type entry struct {
	rec       domain.IdempotencyRecord
	expiresAt time.Time // zero = no expiry
}

// MemoryStore is the in-process Store. Expiry is lazy: expired entries are
// dropped when read or overwritten.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if s.expired(e) {
		delete(s.entries, key)
		return nil, nil
	}
	rec := e.rec
	return &rec, nil
}

// SetIfAbsent implements Store.
func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !s.expired(e) {
		return false, nil
	}
	s.entries[key] = s.newEntry(rec, ttl)
	return true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.newEntry(rec, ttl)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) newEntry(rec *domain.IdempotencyRecord, ttl time.Duration) entry {
	e := entry{rec: *rec}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}
