package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Manager builds business keys and drives the record lifecycle on top of a
// Store. One manager is shared by all dispatch goroutines.
type Manager struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// NewManager creates a manager whose records expire after ttl.
func NewManager(store Store, ttl time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// GenerateKey derives the deterministic business key for one (entity, event)
// pair. Stable across redeliveries of the same message.
func (m *Manager) GenerateKey(entityID, eventID string) string {
	return entityID + ":" + eventID
}

// CheckAndLock gates one processing attempt. When no record exists it
// atomically creates one with status PROCESSING and returns NOT_FOUND (the
// caller should proceed); otherwise it returns the existing status untouched.
//
// Store failures are treated conservatively as NOT_FOUND so a broken store
// cannot deadlock a key; the at-most-once guarantee is degraded and the
// failure is logged loudly.
func (m *Manager) CheckAndLock(ctx context.Context, key string) domain.IdempotencyStatus {
	rec, err := m.store.Get(ctx, key)
	if err != nil {
		m.log.Error("idempotency store read failed, treating key as new",
			"key", key, "error", err)
	}
	if rec != nil {
		return rec.Status
	}

	now := m.now()
	fresh := &domain.IdempotencyRecord{
		Key:       key,
		Status:    domain.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	won, err := m.store.SetIfAbsent(ctx, key, fresh, m.ttl)
	if err != nil {
		m.log.Error("idempotency lock failed, proceeding without lock",
			"key", key, "error", err)
		return domain.StatusNotFound
	}
	if !won {
		// Lost a race with a concurrent worker: report what it wrote.
		if rec, err := m.store.Get(ctx, key); err == nil && rec != nil {
			return rec.Status
		}
		return domain.StatusProcessing
	}
	return domain.StatusNotFound
}

// Relock overwrites a terminal record back to PROCESSING. Used when policy
// allows reprocessing FAILED keys.
func (m *Manager) Relock(ctx context.Context, key string) error {
	now := m.now()
	rec := &domain.IdempotencyRecord{
		Key:       key,
		Status:    domain.StatusProcessing,
		CreatedAt: m.createdAt(ctx, key, now),
		UpdatedAt: now,
	}
	if err := m.store.Set(ctx, key, rec, m.ttl); err != nil {
		return domain.NewIdempotencyError("relock failed for key "+key, err)
	}
	return nil
}

// MarkCompleted records terminal success for key. Only meaningful after a
// prior CheckAndLock returned NOT_FOUND for that key.
func (m *Manager) MarkCompleted(ctx context.Context, key, result string) error {
	now := m.now()
	rec := &domain.IdempotencyRecord{
		Key:       key,
		Status:    domain.StatusCompleted,
		Result:    result,
		CreatedAt: m.createdAt(ctx, key, now),
		UpdatedAt: now,
	}
	if err := m.store.Set(ctx, key, rec, m.ttl); err != nil {
		return domain.NewIdempotencyError("mark completed failed for key "+key, err)
	}
	return nil
}

// MarkFailed records terminal failure for key.
func (m *Manager) MarkFailed(ctx context.Context, key, cause string) error {
	now := m.now()
	rec := &domain.IdempotencyRecord{
		Key:       key,
		Status:    domain.StatusFailed,
		Error:     cause,
		CreatedAt: m.createdAt(ctx, key, now),
		UpdatedAt: now,
	}
	if err := m.store.Set(ctx, key, rec, m.ttl); err != nil {
		return domain.NewIdempotencyError("mark failed failed for key "+key, err)
	}
	return nil
}

// Release deletes the record so the key is immediately eligible for
// reprocessing. Used when a message is abandoned before completion; a record
// stuck in PROCESSING because the process died recovers only via TTL expiry
// unless the shutdown path calls this.
func (m *Manager) Release(ctx context.Context, key string) error {
	if err := m.store.Delete(ctx, key); err != nil {
		return domain.NewIdempotencyError("release failed for key "+key, err)
	}
	return nil
}

func (m *Manager) createdAt(ctx context.Context, key string, fallback time.Time) time.Time {
	if rec, err := m.store.Get(ctx, key); err == nil && rec != nil && !rec.CreatedAt.IsZero() {
		return rec.CreatedAt
	}
	return fallback
}
