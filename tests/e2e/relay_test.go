package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/control"
	"github.com/vietddude/relay/internal/core/config"
)

func testConfig(endpoint string, breakerCfg config.BreakerConfig) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Queue: config.QueueConfig{
			Backend:      "memory",
			Name:         "relay-test",
			PollInterval: 50 * time.Millisecond,
			BatchSize:    10,
			WaitTime:     10 * time.Millisecond,
			Visibility:   time.Minute,
		},
		Idempotency: config.IdempotencyConfig{
			Backend: "memory",
			TTL:     time.Hour,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
		Breaker: breakerCfg,
		Targets: []config.TargetConfig{
			{Name: "orders-api", Kind: "http", Endpoint: endpoint, Timeout: time.Second},
		},
	}
}

func envelope(t *testing.T, eventID string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"event_id":  eventID,
		"entity_id": "order-1",
		"target":    "orders-api",
		"payload":   map[string]int{"total": 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFlakyDownstreamRecovers(t *testing.T) {
	// Downstream fails twice, then succeeds. Retry absorbs the blips; the
	// message is delivered once and the breaker never trips.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	app, err := control.NewRelay(context.Background(), testConfig(srv.URL, config.BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
	}))
	if err != nil {
		t.Fatalf("NewRelay failed: %v", err)
	}

	ctx := context.Background()
	if err := app.Publish(ctx, envelope(t, "evt-1")); err != nil {
		t.Fatal(err)
	}
	app.Poll(ctx)

	if n := hits.Load(); n != 3 {
		t.Errorf("downstream hit %d times, want 3", n)
	}
	if s := app.Collector().Snapshot(); s.Processed != 1 || s.Failed != 0 {
		t.Errorf("snapshot = %+v, want 1 processed", s)
	}
	if s := app.Breakers().Get("orders-api").Stats(); s.State != "CLOSED" || s.FailureCount != 0 {
		t.Errorf("breaker = %+v, want clean CLOSED", s)
	}

	// Acked: another cycle delivers nothing new.
	app.Poll(ctx)
	if n := hits.Load(); n != 3 {
		t.Errorf("acked message redelivered, downstream hits = %d", n)
	}
}

func TestRedeliveryAfterCompletionIsSkipped(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	app, err := control.NewRelay(context.Background(), testConfig(srv.URL, config.BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
	}))
	if err != nil {
		t.Fatalf("NewRelay failed: %v", err)
	}

	ctx := context.Background()
	if err := app.Publish(ctx, envelope(t, "evt-1")); err != nil {
		t.Fatal(err)
	}
	app.Poll(ctx)

	// The broker delivers the same event again.
	if err := app.Publish(ctx, envelope(t, "evt-1")); err != nil {
		t.Fatal(err)
	}
	app.Poll(ctx)

	if n := hits.Load(); n != 1 {
		t.Errorf("downstream hit %d times, want 1 (duplicate must be skipped)", n)
	}
	if s := app.Collector().Snapshot(); s.Processed != 1 || s.Skipped != 1 {
		t.Errorf("snapshot = %+v, want 1 processed and 1 skipped", s)
	}
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, config.BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})
	cfg.Retry.MaxAttempts = 1 // one attempt per delivery keeps the count legible

	app, err := control.NewRelay(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRelay failed: %v", err)
	}

	ctx := context.Background()
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := app.Publish(ctx, envelope(t, id)); err != nil {
			t.Fatal(err)
		}
		app.Poll(ctx)
	}

	if s := app.Breakers().Get("orders-api").Stats(); s.State != "OPEN" {
		t.Fatalf("breaker state = %s after 3 exhausted deliveries, want OPEN", s.State)
	}
	hitsBefore := hits.Load()

	// The fourth message fails fast without a network attempt.
	if err := app.Publish(ctx, envelope(t, "evt-4")); err != nil {
		t.Fatal(err)
	}
	app.Poll(ctx)

	if n := hits.Load(); n != hitsBefore {
		t.Errorf("downstream hit while breaker open: %d -> %d", hitsBefore, n)
	}
	if s := app.Collector().Snapshot(); s.Failed != 4 {
		t.Errorf("failed = %d, want 4", s.Failed)
	}
}

func TestGracefulShutdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, config.BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute})
	cfg.Server.Port = 18931
	cfg.FollowUp.Buffer = 10

	app, err := control.NewRelay(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRelay failed: %v", err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Publish(ctx, envelope(t, "evt-1")); err != nil {
		t.Fatal(err)
	}

	// Let at least one poll cycle run.
	time.Sleep(200 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if s := app.Collector().Snapshot(); s.Processed != 1 {
		t.Errorf("processed = %d, want 1 before shutdown", s.Processed)
	}
}
