// Package backoff computes retry delays. The calculator is a pure function
// over (attempt, policy) with an injectable randomness source so jitter is
// testable.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior. Immutable per call site.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	BaseDelay:       1 * time.Second,
	MaxDelay:        60 * time.Second,
	ExponentialBase: 2.0,
	Jitter:          true,
}

// Delay returns the backoff delay for a 0-based attempt index.
func Delay(attempt int, p Policy) time.Duration {
	return DelayWithRand(attempt, p, rand.Float64)
}

// DelayWithRand computes min(base * expBase^attempt, maxDelay), multiplied by
// a uniform factor in [0.5, 1.5) when jitter is enabled. randFloat must return
// values in [0, 1).
func DelayWithRand(attempt int, p Policy, randFloat func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.ExponentialBase
	if base <= 0 {
		base = 2.0
	}

	d := float64(p.BaseDelay) * math.Pow(base, float64(attempt))
	if maxd := float64(p.MaxDelay); p.MaxDelay > 0 && d > maxd {
		d = maxd
	}
	if p.Jitter {
		d *= 0.5 + randFloat()
	}
	return time.Duration(d)
}
