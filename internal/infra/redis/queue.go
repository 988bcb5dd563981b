package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/relay/internal/queue"
)

// Queue is a redis-backed at-least-once queue with a visibility timeout.
// Pending message IDs live in a sorted set scored by visible-at time
// (milliseconds); bodies and receive counts live in a hash per message.
// An unacknowledged delivery reappears once its score is reached again.
type Queue struct {
	rdb        *redis.Client
	name       string
	visibility time.Duration
}

// NewQueue creates a queue named name on the given client.
func NewQueue(c *Client, name string, visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Queue{rdb: c.rdb, name: name, visibility: visibility}
}

func (q *Queue) pendingKey() string {
	return fmt.Sprintf("relay:queue:%s:pending", q.name)
}

func (q *Queue) msgKey(id string) string {
	return fmt.Sprintf("relay:queue:%s:msg:%s", q.name, id)
}

// Publish implements queue.Publisher.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	id := uuid.NewString()
	if err := q.rdb.HSet(ctx, q.msgKey(id), "body", body, "receive_count", 0).Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	if err := q.rdb.ZAdd(ctx, q.pendingKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// Receive implements queue.Queue. The receipt handle is the message ID: a
// delivery is acknowledged by removing the ID from the pending set.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		msgs, err := q.receiveVisible(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 || time.Now().After(deadline) {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (q *Queue) receiveVisible(ctx context.Context, max int) ([]queue.Message, error) {
	now := time.Now()
	ids, err := q.rdb.ZRangeByScore(ctx, q.pendingKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}

	var msgs []queue.Message
	for _, id := range ids {
		// Hide the message for the visibility window.
		if err := q.rdb.ZAdd(ctx, q.pendingKey(), redis.Z{
			Score:  float64(now.Add(q.visibility).UnixMilli()),
			Member: id,
		}).Err(); err != nil {
			return nil, fmt.Errorf("zadd failed: %w", err)
		}

		count, err := q.rdb.HIncrBy(ctx, q.msgKey(id), "receive_count", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("hincrby failed: %w", err)
		}

		body, err := q.rdb.HGet(ctx, q.msgKey(id), "body").Bytes()
		if err == redis.Nil {
			// Body expired or deleted but the ID lingered: drop the orphan.
			q.rdb.ZRem(ctx, q.pendingKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hget failed: %w", err)
		}

		msgs = append(msgs, queue.Message{
			ID:            id,
			Body:          body,
			ReceiptHandle: id,
			ReceiveCount:  int(count),
		})
	}
	return msgs, nil
}

// Delete implements queue.Queue.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	if err := q.rdb.ZRem(ctx, q.pendingKey(), receiptHandle).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	if err := q.rdb.Del(ctx, q.msgKey(receiptHandle)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
