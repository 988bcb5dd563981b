// Package metrics exposes prometheus collectors for the relay plus an
// aggregate snapshot the health surface can read without touching the
// poll loop.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed counts successful deliveries per target service.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_processed_total",
			Help: "Total number of messages delivered downstream",
		},
		[]string{"target"},
	)

	// MessagesSkipped counts acknowledged-without-delivery messages.
	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_skipped_total",
			Help: "Total number of messages skipped (malformed, duplicate, failed key)",
		},
		[]string{"reason"},
	)

	// MessagesFailed counts deliveries left for redelivery after exhaustion.
	MessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_failed_total",
			Help: "Total number of messages whose delivery failed",
		},
		[]string{"target", "category"},
	)

	// MessagesDeferred counts messages left untouched because their key was
	// already PROCESSING.
	MessagesDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_deferred_total",
			Help: "Total number of messages deferred to queue redelivery",
		},
	)

	// PollCycles counts completed poll cycles.
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_poll_cycles_total",
			Help: "Total number of completed poll cycles",
		},
	)

	// DeliveryDuration tracks end-to-end delivery latency per target,
	// including retries and breaker wait.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_duration_seconds",
			Help:    "Downstream delivery latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// BreakerState exports each breaker's state (0=closed, 1=open, 2=half-open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_breaker_state",
			Help: "Circuit breaker state per downstream service (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service"},
	)

	// BreakerRejections counts calls rejected while a breaker was open.
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit breaker",
		},
		[]string{"service"},
	)

	// IdempotencyChecks counts check-and-lock outcomes per status.
	IdempotencyChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_idempotency_checks_total",
			Help: "Total number of idempotency check-and-lock calls per resulting status",
		},
		[]string{"status"},
	)
)

// Collector keeps the aggregate counters behind the health snapshot.
// All updates are atomic so dispatch goroutines never contend on a lock.
type Collector struct {
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	cycles    atomic.Int64
	totalDur  atomic.Int64 // nanoseconds across poll cycles
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordProcessed accounts one successful delivery.
func (c *Collector) RecordProcessed(target string) {
	c.processed.Add(1)
	MessagesProcessed.WithLabelValues(target).Inc()
}

// RecordSkipped accounts one message acknowledged without delivery.
func (c *Collector) RecordSkipped(reason string) {
	c.skipped.Add(1)
	MessagesSkipped.WithLabelValues(reason).Inc()
}

// RecordFailed accounts one delivery left for redelivery.
func (c *Collector) RecordFailed(target, category string) {
	c.failed.Add(1)
	MessagesFailed.WithLabelValues(target, category).Inc()
}

// RecordDeferred accounts one message left to queue redelivery. Deferred
// messages appear in none of the snapshot counters.
func (c *Collector) RecordDeferred() {
	MessagesDeferred.Inc()
}

// RecordCycle accounts one completed poll cycle.
func (c *Collector) RecordCycle(d time.Duration) {
	c.cycles.Add(1)
	c.totalDur.Add(int64(d))
	PollCycles.Inc()
}

// Snapshot is a point-in-time view of the aggregate counters.
type Snapshot struct {
	Processed        int64         `json:"processed"`
	Skipped          int64         `json:"skipped"`
	Failed           int64         `json:"failed"`
	PollCycles       int64         `json:"poll_cycles"`
	AverageCycleTime time.Duration `json:"average_cycle_ns"`
}

// Snapshot returns the current counters. Safe to call from any goroutine.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Processed:  c.processed.Load(),
		Skipped:    c.skipped.Load(),
		Failed:     c.failed.Load(),
		PollCycles: c.cycles.Load(),
	}
	if s.PollCycles > 0 {
		s.AverageCycleTime = time.Duration(c.totalDur.Load() / s.PollCycles)
	}
	return s
}

// Reset clears the aggregate counters. Prometheus series are left alone;
// they are monotonic by contract.
func (c *Collector) Reset() {
	c.processed.Store(0)
	c.skipped.Store(0)
	c.failed.Store(0)
	c.cycles.Store(0)
	c.totalDur.Store(0)
}
