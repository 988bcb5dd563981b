// Package consumer orchestrates the relay: it pulls message batches, gates
// each message through the idempotency manager, routes delivery through the
// circuit breaker and retry executor, and acknowledges or leaves messages
// for the queue's redelivery.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/idempotency"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/queue"
	"github.com/vietddude/relay/internal/resilience/breaker"
)

// Deliverer applies an envelope's side effect downstream.
type Deliverer interface {
	Deliver(ctx context.Context, env *domain.Envelope) error
}

// Config holds poller settings.
type Config struct {
	// PollInterval is the delay between poll cycles.
	PollInterval time.Duration
	// BatchSize bounds both the receive size and the dispatch fan-out.
	BatchSize int
	// WaitTime is how long one receive waits for at least one message.
	WaitTime time.Duration
	// DefaultTarget is used when an envelope names no target service.
	DefaultTarget string
	// RetryFailedKeys controls whether a key marked FAILED is reprocessed
	// on redelivery (true) or skipped until its TTL expires (false).
	RetryFailedKeys bool
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeDeferred
	outcomeFailed
)

// Poller drives the poll cycle state machine: IDLE → POLLING → DISPATCHING
// → IDLE. Only one cycle is active at a time within a process.
type Poller struct {
	cfg         Config
	queue       queue.Queue
	idem        *idempotency.Manager
	deliverer   Deliverer
	collector   *metrics.Collector
	completions chan<- domain.Completion
	log         *slog.Logger

	polling atomic.Bool // re-entrancy guard
	stopped atomic.Bool
	wg      sync.WaitGroup // in-flight dispatches
}

// NewPoller creates a poller. completions may be nil when no follow-up
// pipeline is wired.
func NewPoller(
	cfg Config,
	q queue.Queue,
	idem *idempotency.Manager,
	d Deliverer,
	collector *metrics.Collector,
	completions chan<- domain.Completion,
	log *slog.Logger,
) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cfg:         cfg,
		queue:       q,
		idem:        idem,
		deliverer:   d,
		collector:   collector,
		completions: completions,
		log:         log,
	}
}

// Run drives poll cycles on a fixed interval until ctx is cancelled, then
// drains in-flight dispatches. The stop flag is checked at the top of each
// cycle; dispatches already running are never cancelled, only awaited.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return
		case <-ticker.C:
			if p.stopped.Load() {
				return
			}
			p.Poll(ctx)
		}
	}
}

// Stop prevents new cycles and waits for in-flight dispatches to finish.
func (p *Poller) Stop() {
	p.stopped.Store(true)
	p.wg.Wait()
}

// Poll runs one cycle. A cycle already in progress makes this a no-op, so
// overlapping ticks and manual calls cannot run two cycles at once.
func (p *Poller) Poll(ctx context.Context) {
	if p.stopped.Load() {
		return
	}
	if !p.polling.CompareAndSwap(false, true) {
		return
	}
	defer p.polling.Store(false)

	start := time.Now()
	msgs, err := p.queue.Receive(ctx, p.cfg.BatchSize, p.cfg.WaitTime)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Error("queue receive failed", "error", err)
		}
		return
	}
	if len(msgs) == 0 {
		p.collector.RecordCycle(time.Since(start))
		return
	}

	// Fan out the batch; outcomes are independent and all awaited, so one
	// message's failure never short-circuits the rest.
	outcomes := make([]outcome, len(msgs))
	var wg sync.WaitGroup
	for i, msg := range msgs {
		wg.Add(1)
		p.wg.Add(1)
		go func(i int, msg queue.Message) {
			defer wg.Done()
			defer p.wg.Done()
			outcomes[i] = p.handle(ctx, msg)
		}(i, msg)
	}
	wg.Wait()

	var processed, skipped, deferred, failed int
	for _, o := range outcomes {
		switch o {
		case outcomeProcessed:
			processed++
		case outcomeSkipped:
			skipped++
		case outcomeDeferred:
			deferred++
		case outcomeFailed:
			failed++
		}
	}
	p.collector.RecordCycle(time.Since(start))
	p.log.Debug("poll cycle complete",
		"messages", len(msgs),
		"processed", processed,
		"skipped", skipped,
		"deferred", deferred,
		"failed", failed,
		"duration", time.Since(start))
}

func (p *Poller) handle(ctx context.Context, msg queue.Message) outcome {
	env, err := domain.ParseEnvelope(msg.Body)
	if err != nil {
		// Unrecoverable: the same bytes fail the same way on redelivery.
		p.log.Warn("dropping malformed message",
			"message_id", msg.ID,
			"receive_count", msg.ReceiveCount,
			"error", err)
		p.ack(ctx, msg)
		p.collector.RecordSkipped("malformed")
		return outcomeSkipped
	}

	if env.Target == "" {
		env.Target = p.cfg.DefaultTarget
	}
	if env.Target == "" {
		p.log.Warn("dropping message with no target service",
			"message_id", msg.ID,
			"event_id", env.EventID)
		p.ack(ctx, msg)
		p.collector.RecordSkipped("malformed")
		return outcomeSkipped
	}

	key := p.idem.GenerateKey(env.EntityID, env.EventID)
	status := p.idem.CheckAndLock(ctx, key)
	metrics.IdempotencyChecks.WithLabelValues(string(status)).Inc()

	switch status {
	case domain.StatusCompleted:
		// Duplicate delivery of already-finished work.
		p.ack(ctx, msg)
		p.collector.RecordSkipped("duplicate")
		return outcomeSkipped

	case domain.StatusProcessing:
		// Another delivery of this key is in flight. Leave the message
		// unacknowledged; the queue's redelivery delay governs the next
		// attempt.
		p.collector.RecordDeferred()
		return outcomeDeferred

	case domain.StatusFailed:
		if !p.cfg.RetryFailedKeys {
			p.ack(ctx, msg)
			p.collector.RecordSkipped("failed_key")
			return outcomeSkipped
		}
		if err := p.idem.Relock(ctx, key); err != nil {
			p.log.Error("failed to relock failed key, deferring",
				"key", key, "error", err)
			return outcomeDeferred
		}
	}

	return p.deliver(ctx, msg, env, key)
}

func (p *Poller) deliver(ctx context.Context, msg queue.Message, env *domain.Envelope, key string) outcome {
	err := p.deliverer.Deliver(ctx, env)
	if err != nil {
		if merr := p.idem.MarkFailed(ctx, key, err.Error()); merr != nil {
			p.log.Error("failed to mark key failed", "key", key, "error", merr)
		}
		if errors.Is(err, breaker.ErrOpen) {
			p.log.Warn("delivery rejected, circuit breaker open",
				"key", key, "target", env.Target)
		} else {
			p.log.Error("delivery failed, leaving message for redelivery",
				"key", key,
				"target", env.Target,
				"receive_count", msg.ReceiveCount,
				"error", err)
		}
		p.collector.RecordFailed(env.Target, domain.CategoryOf(err))
		return outcomeFailed
	}

	if merr := p.idem.MarkCompleted(ctx, key, "delivered"); merr != nil {
		p.log.Error("failed to mark key completed", "key", key, "error", merr)
	}
	p.ack(ctx, msg)
	p.collector.RecordProcessed(env.Target)

	if p.completions != nil {
		c := domain.Completion{
			Key:         key,
			EventID:     env.EventID,
			EntityID:    env.EntityID,
			Target:      env.Target,
			CompletedAt: time.Now(),
		}
		select {
		case p.completions <- c:
		default:
			p.log.Warn("completion channel full, dropping follow-up event", "key", key)
		}
	}
	return outcomeProcessed
}

func (p *Poller) ack(ctx context.Context, msg queue.Message) {
	if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		p.log.Error("failed to acknowledge message",
			"message_id", msg.ID, "error", err)
	}
}
