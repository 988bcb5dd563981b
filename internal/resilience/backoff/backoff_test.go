package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayWithoutJitter(t *testing.T) {
	p := Policy{
		MaxAttempts:     5,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          false,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second}, // capped
		{10, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := Delay(tt.attempt, p); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayNegativeAttemptClamped(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, ExponentialBase: 2.0}
	if got := Delay(-3, p); got != time.Second {
		t.Errorf("Delay(-3) = %v, want %v", got, time.Second)
	}
}

func TestDelayJitterRange(t *testing.T) {
	p := Policy{
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
	rng := rand.New(rand.NewSource(42))

	unjittered := 4 * time.Second // attempt 2
	seen := make(map[time.Duration]struct{})
	for i := 0; i < 20; i++ {
		d := DelayWithRand(2, p, rng.Float64)
		if d < unjittered/2 || d >= unjittered*3/2 {
			t.Fatalf("jittered delay %v outside [%v, %v)", d, unjittered/2, unjittered*3/2)
		}
		seen[d] = struct{}{}
	}
	if len(seen) < 2 {
		t.Errorf("expected varied jittered delays, got %d distinct values", len(seen))
	}
}

func TestDelayWithRandDeterministic(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, ExponentialBase: 2.0, Jitter: true}
	fixed := func() float64 { return 0.5 }

	// factor = 0.5 + 0.5 = 1.0, so the jittered delay equals the raw delay
	if got := DelayWithRand(1, p, fixed); got != 2*time.Second {
		t.Errorf("DelayWithRand(1) = %v, want %v", got, 2*time.Second)
	}
}
