package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type item struct {
	id           string
	body         []byte
	receiveCount int
	visibleAt    time.Time
	handle       string // current receipt handle, empty while visible
}

// MemoryQueue is an in-process Queue with visibility-timeout semantics.
// Used by tests and single-process deployments.
type MemoryQueue struct {
	mu         sync.Mutex
	items      []*item
	visibility time.Duration
	now        func() time.Time
}

// NewMemoryQueue creates a queue whose deliveries stay hidden for visibility
// after each receive.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &MemoryQueue{
		visibility: visibility,
		now:        time.Now,
	}
}

// Publish implements Publisher.
func (q *MemoryQueue) Publish(ctx context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, &item{
		id:        uuid.NewString(),
		body:      append([]byte(nil), body...),
		visibleAt: q.now(),
	})
	return nil
}

// Receive implements Queue. Polls every few milliseconds until a message is
// visible or wait elapses.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := q.now().Add(wait)
	for {
		msgs := q.receiveVisible(max)
		if len(msgs) > 0 || q.now().After(deadline) {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) receiveVisible(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var msgs []Message
	for _, it := range q.items {
		if len(msgs) >= max {
			break
		}
		if it.visibleAt.After(now) {
			continue
		}
		it.receiveCount++
		it.visibleAt = now.Add(q.visibility)
		it.handle = uuid.NewString()
		msgs = append(msgs, Message{
			ID:            it.id,
			Body:          append([]byte(nil), it.body...),
			ReceiptHandle: it.handle,
			ReceiveCount:  it.receiveCount,
		})
	}
	return msgs
}

// Delete implements Queue. Only the handle of the latest delivery removes
// the message; stale handles are ignored.
func (q *MemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.handle == receiptHandle && receiptHandle != "" {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

// Size returns the number of messages still in the queue, visible or not.
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
