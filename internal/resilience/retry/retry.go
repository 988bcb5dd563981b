// Package retry executes operations with exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/resilience/backoff"
)

// Operation is a single attempt at a unit of work.
type Operation func(ctx context.Context) error

// Executor runs operations under a retry policy. Failed attempts sleep the
// backoff calculator's delay; non-retryable failures abort immediately.
type Executor struct {
	policy backoff.Policy
	log    *slog.Logger
	rand   func() float64
}

// NewExecutor creates an executor for the given policy.
func NewExecutor(policy backoff.Policy, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{policy: policy, log: log, rand: rand.Float64}
}

// Do runs op up to MaxAttempts times. It returns the first success, or the
// last error unchanged so callers can inspect the original failure. There is
// no sleep after the final attempt.
func (e *Executor) Do(ctx context.Context, name string, op Operation) error {
	attempts := e.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			e.log.Warn("non-retryable failure, giving up",
				"operation", name,
				"attempt", attempt+1,
				"error", err)
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := backoff.DelayWithRand(attempt, e.policy, e.rand)
		e.log.Warn("attempt failed, backing off",
			"operation", name,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	e.log.Error("all attempts failed",
		"operation", name,
		"attempts", attempts,
		"error", lastErr)
	return lastErr
}
