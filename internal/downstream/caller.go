// Package downstream delivers envelopes to the integration targets, routing
// every call through the target's circuit breaker and retry policy.
package downstream

import (
	"context"

	"github.com/vietddude/relay/internal/core/domain"
)

// Caller delivers one envelope to a named downstream service. A nil return
// means the side effect was applied; a typed domain error classifies the
// failure for retry decisions.
type Caller interface {
	Name() string
	Call(ctx context.Context, env *domain.Envelope) error
}
