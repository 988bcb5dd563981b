package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// HTTPCaller posts envelopes as JSON to a fixed endpoint. 5xx responses and
// transport failures are retryable; 4xx responses (except 429) are not, since
// resending the same envelope cannot fix a request the service rejected.
type HTTPCaller struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPCaller creates a caller for the named service.
func NewHTTPCaller(name, endpoint string, timeout time.Duration) *HTTPCaller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCaller{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Caller.
func (c *HTTPCaller) Name() string { return c.name }

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, env *domain.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return domain.NewIntegrationError(c.name, "failed to encode envelope", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.NewIntegrationError(c.name, "failed to build request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", env.EventID)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewTransportError(c.name+": request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, snippet)
	retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return domain.NewIntegrationError(c.name, msg, retryable, nil)
}
