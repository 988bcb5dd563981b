package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("downstream unavailable")

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
		CallTimeout:      0, // no timeout in unit tests unless stated
	}
}

// fakeClock lets tests control the breaker's view of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	b := New("orders-api", cfg, nil)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b.now = clock.now
	return b, clock
}

func fail(ctx context.Context) error    { return errDown }
func succeed(ctx context.Context) error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(testConfig())

	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errDown) {
			t.Fatalf("execution %d returned %v, want %v", i+1, err, errDown)
		}
	}

	stats := b.Stats()
	if stats.State != "OPEN" {
		t.Fatalf("state = %s, want OPEN", stats.State)
	}
}

func TestOpenFailsFastWithoutInvoking(t *testing.T) {
	b, _ := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute returned %v, want ErrOpen", err)
	}
	if invoked {
		t.Error("operation was invoked while the breaker was open")
	}
}

func TestHalfOpenTrialAfterResetTimeout(t *testing.T) {
	b, clock := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	clock.advance(31 * time.Second)

	// Trial call is let through.
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("trial call returned %v", err)
	}
	if s := b.Stats().State; s != "HALF_OPEN" {
		t.Fatalf("state after one trial success = %s, want HALF_OPEN", s)
	}

	// Second consecutive success closes it.
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("second trial call returned %v", err)
	}
	if s := b.Stats().State; s != "CLOSED" {
		t.Errorf("state = %s, want CLOSED", s)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	clock.advance(31 * time.Second)

	if err := b.Execute(context.Background(), fail); !errors.Is(err, errDown) {
		t.Fatalf("trial call returned %v, want %v", err, errDown)
	}
	if s := b.Stats().State; s != "OPEN" {
		t.Errorf("state = %s, want OPEN", s)
	}

	// Still rejecting before the next reset window.
	if err := b.Execute(context.Background(), succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Execute returned %v, want ErrOpen", err)
	}
}

func TestSuccessResetsFailureCountWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(testConfig())

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), succeed)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)

	if s := b.Stats(); s.State != "CLOSED" || s.FailureCount != 2 {
		t.Errorf("stats = %+v, want CLOSED with 2 failures", s)
	}
}

func TestCallTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	b, _ := newTestBreaker(cfg)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if s := b.Stats(); s.FailureCount != 1 {
		t.Errorf("failure count = %d, want 1", s.FailureCount)
	}
}

func TestResetForcesClosed(t *testing.T) {
	b, _ := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	b.Reset()

	s := b.Stats()
	if s.State != "CLOSED" || s.FailureCount != 0 || s.SuccessCount != 0 {
		t.Errorf("stats after reset = %+v, want clean CLOSED", s)
	}
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Errorf("Execute after reset returned %v", err)
	}
}

func TestRegistrySharesInstancePerService(t *testing.T) {
	r := NewRegistry(testConfig(), nil)

	a := r.Get("orders-api")
	if r.Get("orders-api") != a {
		t.Error("Get returned a different instance for the same service")
	}
	if r.Get("billing-api") == a {
		t.Error("distinct services share a breaker")
	}
}

func TestRegistryOverrides(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	r.Configure("billing-api", Config{FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Minute})

	b := r.Get("billing-api")
	_ = b.Execute(context.Background(), fail)
	if s := b.Stats().State; s != "OPEN" {
		t.Errorf("state = %s, want OPEN after a single failure with threshold 1", s)
	}
}

func TestRegistryStatsAndReset(t *testing.T) {
	r := NewRegistry(testConfig(), nil)
	r.Get("b-service")
	r.Get("a-service")

	stats := r.Stats()
	if len(stats) != 2 || stats[0].Service != "a-service" || stats[1].Service != "b-service" {
		t.Errorf("Stats() = %+v, want sorted [a-service b-service]", stats)
	}

	if r.Reset("missing") {
		t.Error("Reset reported success for an unknown service")
	}
	if !r.Reset("a-service") {
		t.Error("Reset failed for a known service")
	}
	r.ResetAll()
}
