package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Envelope is the canonical inbound message payload. The producer publishes
// one envelope per business event; event_id and entity_id together identify
// one attempt at applying one event to one entity.
type Envelope struct {
	EventID  string          `json:"event_id"`
	EntityID string          `json:"entity_id"`
	Target   string          `json:"target,omitempty"`
	Type     string          `json:"type,omitempty"`
	Source   string          `json:"source,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Completion records one successfully delivered envelope. Emitted on the
// follow-up pipeline after the idempotency record is marked completed.
type Completion struct {
	Key         string    `json:"key"`
	EventID     string    `json:"event_id"`
	EntityID    string    `json:"entity_id"`
	Target      string    `json:"target"`
	CompletedAt time.Time `json:"completed_at"`
}

// ParseEnvelope decodes and validates a raw message body. Every violation is
// collected, not just the first, so a single log line shows everything wrong
// with a dropped message.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, NewValidationError([]string{"body is not valid JSON: " + err.Error()})
	}

	var violations []string
	if strings.TrimSpace(env.EventID) == "" {
		violations = append(violations, "event_id is required")
	}
	if strings.TrimSpace(env.EntityID) == "" {
		violations = append(violations, "entity_id is required")
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		violations = append(violations, "payload is required")
	}
	if len(violations) > 0 {
		return nil, NewValidationError(violations)
	}

	return &env, nil
}
