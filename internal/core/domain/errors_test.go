package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", NewValidationError([]string{"bad"}), false},
		{"configuration", NewConfigurationError("missing target"), false},
		{"idempotency", NewIdempotencyError("store down", nil), false},
		{"transport", NewTransportError("connection refused", nil), true},
		{"retryable integration", NewIntegrationError("orders-api", "503", true, nil), true},
		{"terminal integration", NewIntegrationError("orders-api", "400", false, nil), false},
		{"unclassified", errors.New("something"), true},
		{"wrapped", fmt.Errorf("deliver: %w", NewValidationError(nil)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategoryOf(t *testing.T) {
	if got := CategoryOf(NewTransportError("x", nil)); got != "transport" {
		t.Errorf("CategoryOf = %q", got)
	}
	if got := CategoryOf(errors.New("plain")); got != "unclassified" {
		t.Errorf("CategoryOf = %q, want unclassified", got)
	}
	if got := CategoryOf(fmt.Errorf("wrap: %w", NewIntegrationError("s", "m", true, nil))); got != "integration" {
		t.Errorf("CategoryOf wrapped = %q", got)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewIntegrationError("orders-api", "unavailable", true, cause)
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	want := "integration: orders-api: unavailable: dial tcp: refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
