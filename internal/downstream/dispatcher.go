package downstream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/resilience/breaker"
	"github.com/vietddude/relay/internal/resilience/retry"
)

// Dispatcher routes envelopes to their target's caller through the shared
// circuit breaker, with retries running inside the breaker: one breaker
// failure corresponds to one business operation exhausting its retries, so
// transient blips that retry absorbs never open the breaker.
type Dispatcher struct {
	breakers *breaker.Registry
	retry    *retry.Executor
	callers  map[string]Caller
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher with no registered callers.
func NewDispatcher(breakers *breaker.Registry, exec *retry.Executor, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		breakers: breakers,
		retry:    exec,
		callers:  make(map[string]Caller),
		log:      log,
	}
}

// Register adds a caller. Call before the first dispatch; the caller map is
// read-only afterwards.
func (d *Dispatcher) Register(c Caller) {
	d.callers[c.Name()] = c
}

// Targets returns the registered service names, sorted.
func (d *Dispatcher) Targets() []string {
	names := make([]string, 0, len(d.callers))
	for name := range d.callers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver applies env's side effect on its target service.
func (d *Dispatcher) Deliver(ctx context.Context, env *domain.Envelope) error {
	c, ok := d.callers[env.Target]
	if !ok {
		return domain.NewConfigurationError("no caller registered for target " + env.Target)
	}

	br := d.breakers.Get(env.Target)
	start := time.Now()
	err := br.Execute(ctx, func(ctx context.Context) error {
		return d.retry.Do(ctx, env.Target, func(ctx context.Context) error {
			return c.Call(ctx, env)
		})
	})
	metrics.DeliveryDuration.WithLabelValues(env.Target).Observe(time.Since(start).Seconds())

	if errors.Is(err, breaker.ErrOpen) {
		metrics.BreakerRejections.WithLabelValues(env.Target).Inc()
	}
	return err
}
