package domain

import "time"

// IdempotencyStatus is the lifecycle state of one business key.
//
// State machine:
//
//	[NOT_FOUND] ---(check-and-lock)---> [PROCESSING]
//	[PROCESSING] ---(mark completed)--> [COMPLETED]
//	[PROCESSING] ---(mark failed)-----> [FAILED]
//	[COMPLETED]/[FAILED] ---(TTL expiry or release)---> [NOT_FOUND]
type IdempotencyStatus string

const (
	StatusNotFound   IdempotencyStatus = "NOT_FOUND"
	StatusProcessing IdempotencyStatus = "PROCESSING"
	StatusCompleted  IdempotencyStatus = "COMPLETED"
	StatusFailed     IdempotencyStatus = "FAILED"
)

// IdempotencyRecord is the stored state for one business key. At most one
// record per key is PROCESSING at a time; COMPLETED and FAILED are terminal
// until TTL expiry makes the key reusable.
type IdempotencyRecord struct {
	Key       string            `json:"key"`
	Status    IdempotencyStatus `json:"status"`
	Result    string            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
