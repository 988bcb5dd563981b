// Package idempotency gates message processing so each business key produces
// its downstream side effect at most once despite queue redelivery.
package idempotency

import (
	"context"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Store persists idempotency records keyed by business key. Implementations
// must be safe for concurrent use and atomic per key: when multiple consumer
// processes share one store, SetIfAbsent is the sole source of the
// at-most-once guarantee.
type Store interface {
	// Get returns the record for key, or nil when absent. An expired record
	// is absent even if the backing storage has not reclaimed it yet.
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	// SetIfAbsent atomically creates the record when no live record exists
	// for key. Reports whether the write won. ttl <= 0 means no expiry.
	SetIfAbsent(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) (bool, error)

	// Set overwrites the record unconditionally. Full overwrite, no merge.
	Set(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) error

	// Delete removes the record, making the key immediately reusable.
	Delete(ctx context.Context, key string) error
}
