package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Store implements idempotency.Store on PostgreSQL. Expiry is enforced in
// the read predicates; expired rows are overwritten in place on the next
// lock attempt rather than reclaimed by a background job.
type Store struct {
	db *DB
}

// NewStore creates a postgres-backed idempotency store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

type recordRow struct {
	Key       string         `db:"key"`
	Status    string         `db:"status"`
	Result    sql.NullString `db:"result"`
	Error     sql.NullString `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
	ExpiresAt sql.NullTime   `db:"expires_at"`
}

func (r recordRow) toDomain() *domain.IdempotencyRecord {
	return &domain.IdempotencyRecord{
		Key:       r.Key,
		Status:    domain.IdempotencyStatus(r.Status),
		Result:    r.Result.String,
		Error:     r.Error.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func expiresAt(ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
}

// Get returns the live record for key; an expired row counts as absent even
// before it is reclaimed.
func (s *Store) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `
		SELECT key, status, result, error, created_at, updated_at, expires_at
		FROM idempotency_records
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	return row.toDomain(), nil
}

// SetIfAbsent atomically creates the record when no live row exists. An
// expired row is taken over in the same statement, so the per-key atomicity
// holds across consumer processes sharing one database.
func (s *Store) SetIfAbsent(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, status, result, error, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE
		SET status = EXCLUDED.status,
		    result = EXCLUDED.result,
		    error = EXCLUDED.error,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at,
		    expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at IS NOT NULL
		  AND idempotency_records.expires_at <= now()`,
		key, string(rec.Status), nullable(rec.Result), nullable(rec.Error),
		rec.CreatedAt, rec.UpdatedAt, expiresAt(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to lock idempotency record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Set overwrites the record unconditionally.
func (s *Store) Set(ctx context.Context, key string, rec *domain.IdempotencyRecord, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, status, result, error, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE
		SET status = EXCLUDED.status,
		    result = EXCLUDED.result,
		    error = EXCLUDED.error,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at,
		    expires_at = EXCLUDED.expires_at`,
		key, string(rec.Status), nullable(rec.Result), nullable(rec.Error),
		rec.CreatedAt, rec.UpdatedAt, expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("failed to set idempotency record: %w", err)
	}
	return nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
