// Package breaker implements per-service circuit breaking. One breaker is
// shared by all calls to the same downstream service name, so failures from
// concurrent messages contribute to the same counters: the breaker protects
// the shared downstream resource, not a single message.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/metrics"
)

// ErrOpen signals that a call was rejected without reaching the downstream.
// Distinct from a downstream failure: callers must not count it as one.
var ErrOpen = errors.New("circuit breaker is open")

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines breaker thresholds for one downstream service.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count that closes a
	// half-open breaker.
	SuccessThreshold int
	// ResetTimeout is how long an open breaker rejects calls before
	// letting a trial call through.
	ResetTimeout time.Duration
	// CallTimeout is the hard deadline on one Execute call. The retried
	// operation runs inside Execute, so the timeout must budget for every
	// attempt plus backoff sleeps.
	CallTimeout time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	ResetTimeout:     30 * time.Second,
	CallTimeout:      60 * time.Second,
}

// Breaker is the state machine guarding one downstream service.
type Breaker struct {
	name string
	cfg  Config
	log  *slog.Logger
	now  func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// New creates a closed breaker for the named service.
func New(name string, cfg Config, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig.ResetTimeout
	}
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateClosed,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Execute runs op under the breaker. While open and before the reset timeout
// it fails fast with ErrOpen and op is not invoked. Otherwise op runs under
// the hard CallTimeout and its outcome drives the state transitions.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.run(ctx, op)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.cfg.ResetTimeout {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		// Reset timeout elapsed: let the next call through as a trial.
		b.transition(StateHalfOpen)
	}
	return nil
}

func (b *Breaker) run(ctx context.Context, op func(ctx context.Context) error) error {
	if b.cfg.CallTimeout <= 0 {
		return op(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return domain.NewIntegrationError(b.name,
			fmt.Sprintf("call did not complete within %s", b.cfg.CallTimeout),
			true, ctx.Err())
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		default:
			b.failures = 0
		}
		return
	}

	b.lastFailure = b.now()
	switch b.state {
	case StateHalfOpen:
		// A single failure during trial reopens the breaker.
		b.transition(StateOpen)
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	switch to {
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}
	b.log.Info("circuit breaker state change",
		"service", b.name,
		"from", from.String(),
		"to", to.String())
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
}

// Stats is an observability snapshot of one breaker.
type Stats struct {
	Service      string    `json:"service"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	LastFailure  time.Time `json:"last_failure,omitzero"`
}

// Stats returns the breaker's current state and counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Service:      b.name,
		State:        b.state.String(),
		FailureCount: b.failures,
		SuccessCount: b.successes,
		LastFailure:  b.lastFailure,
	}
}

// Reset forces the breaker closed and clears its counters. Administrative
// escape hatch; normal recovery goes through HALF_OPEN.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.lastFailure = time.Time{}
}
