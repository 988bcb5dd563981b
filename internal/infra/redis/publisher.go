package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/relay/internal/core/domain"
)

// CompletionPublisher appends completion events to a redis stream so other
// systems can react to finished work without the relay knowing about them.
type CompletionPublisher struct {
	rdb    *redis.Client
	stream string
}

// NewCompletionPublisher creates a publisher writing to stream.
func NewCompletionPublisher(c *Client, stream string) *CompletionPublisher {
	return &CompletionPublisher{rdb: c.rdb, stream: stream}
}

// PublishCompletion implements consumer.CompletionPublisher.
func (p *CompletionPublisher) PublishCompletion(ctx context.Context, c domain.Completion) error {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"key":          c.Key,
			"event_id":     c.EventID,
			"entity_id":    c.EntityID,
			"target":       c.Target,
			"completed_at": c.CompletedAt.UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}
