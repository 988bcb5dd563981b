package consumer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
)

// CompletionPublisher emits a completion event for downstream audit or
// notification consumers.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, c domain.Completion) error
}

// FollowUpWorker drains the poller's completion channel and hands each event
// to a publisher. Publishing is best-effort: a failed publish is logged and
// dropped, it never blocks or fails message processing.
type FollowUpWorker struct {
	ch  chan domain.Completion
	pub CompletionPublisher
	log *slog.Logger
	wg  sync.WaitGroup
}

// NewFollowUpWorker creates a worker with the given channel capacity.
func NewFollowUpWorker(buffer int, pub CompletionPublisher, log *slog.Logger) *FollowUpWorker {
	if buffer < 1 {
		buffer = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &FollowUpWorker{
		ch:  make(chan domain.Completion, buffer),
		pub: pub,
		log: log,
	}
}

// Completions returns the send side for the poller.
func (w *FollowUpWorker) Completions() chan<- domain.Completion {
	return w.ch
}

// Start launches the drain loop. ctx bounds individual publishes, not the
// loop itself; the loop exits when the channel closes.
func (w *FollowUpWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for c := range w.ch {
			if err := w.pub.PublishCompletion(ctx, c); err != nil {
				w.log.Warn("failed to publish completion event",
					"key", c.Key, "target", c.Target, "error", err)
			}
		}
	}()
}

// Stop closes the channel and waits for buffered events to drain. The poller
// must be stopped first so nothing sends on a closed channel.
func (w *FollowUpWorker) Stop() {
	close(w.ch)
	w.wg.Wait()
}

// LogPublisher is the fallback publisher used when no stream backend is
// configured. It just records the completion in the log.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher returns a publisher that logs completions at info level.
func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

// PublishCompletion implements CompletionPublisher.
func (p *LogPublisher) PublishCompletion(_ context.Context, c domain.Completion) error {
	p.log.Info("message completed",
		"key", c.Key,
		"event_id", c.EventID,
		"entity_id", c.EntityID,
		"target", c.Target)
	return nil
}
