// Package queue defines the at-least-once message source the consumer
// drains. Acknowledge-by-delete and leave-for-redelivery are the only two
// terminal actions; there is no explicit reject.
package queue

import (
	"context"
	"time"
)

// Message is one delivery. ReceiptHandle is the token required to
// acknowledge this particular delivery; it rotates on redelivery.
// ReceiveCount is owned by the queue and read-only here.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
	ReceiveCount  int
}

// Queue is the consumer-side contract.
type Queue interface {
	// Receive returns up to max messages, waiting up to wait for at least
	// one to become visible. Received messages are hidden from other
	// consumers until the visibility timeout elapses.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Delete acknowledges a delivery. A stale handle (the message was
	// already redelivered or deleted) is a no-op.
	Delete(ctx context.Context, receiptHandle string) error
}

// Publisher enqueues message bodies.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}
