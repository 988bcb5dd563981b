package domain

import (
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	body := []byte(`{"event_id":"evt-1","entity_id":"order-1","target":"orders-api","payload":{"total":100}}`)
	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope returned %v", err)
	}
	if env.EventID != "evt-1" || env.EntityID != "order-1" || env.Target != "orders-api" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestParseEnvelopeInvalidJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Error("malformed body must not be retryable")
	}
}

func TestParseEnvelopeCollectsAllViolations(t *testing.T) {
	// Missing event_id, entity_id and payload: all three show up at once.
	_, err := ParseEnvelope([]byte(`{"target":"orders-api","payload":null}`))
	if err == nil {
		t.Fatal("expected error")
	}

	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T", err)
	}
	if len(de.Violations) != 3 {
		t.Errorf("violations = %v, want 3 entries", de.Violations)
	}
	if de.Category != CategoryValidation {
		t.Errorf("category = %s", de.Category)
	}
}

func TestParseEnvelopeWhitespaceIDs(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"event_id":"  ","entity_id":"order-1","payload":{}}`))
	if err == nil {
		t.Error("whitespace-only event_id must be rejected")
	}
}
