// Package control wires the relay's components together and manages their
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/relay/internal/consumer"
	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/downstream"
	"github.com/vietddude/relay/internal/health"
	"github.com/vietddude/relay/internal/idempotency"
	"github.com/vietddude/relay/internal/infra/postgres"
	redisclient "github.com/vietddude/relay/internal/infra/redis"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/queue"
	"github.com/vietddude/relay/internal/resilience/breaker"
	"github.com/vietddude/relay/internal/resilience/retry"
)

// Relay is the main application struct that manages the consumer lifecycle.
type Relay struct {
	cfg          *config.AppConfig
	queue        queue.Queue
	poller       *consumer.Poller
	followUp     *consumer.FollowUpWorker
	dispatcher   *downstream.Dispatcher
	breakers     *breaker.Registry
	collector    *metrics.Collector
	healthServer *health.Server
	redisClient  *redisclient.Client
	db           *postgres.DB
	grpcCallers  []*downstream.GRPCCaller
	log          *slog.Logger

	cancel context.CancelFunc
}

// NewRelay creates a Relay with all dependencies initialized. Fatal
// configuration or connection errors abort startup here rather than
// surfacing mid-poll.
func NewRelay(ctx context.Context, cfg *config.AppConfig) (*Relay, error) {
	log := slog.Default()

	// 1. Shared infrastructure clients
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
	}

	var db *postgres.DB
	if cfg.Idempotency.Backend == "postgres" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL idempotency store")
	}

	// 2. Inbound queue
	var q queue.Queue
	switch cfg.Queue.Backend {
	case "redis":
		q = redisclient.NewQueue(redisClient, cfg.Queue.Name, cfg.Queue.Visibility)
		slog.Info("Using Redis queue", "name", cfg.Queue.Name)
	default:
		q = queue.NewMemoryQueue(cfg.Queue.Visibility)
		slog.Info("Using Memory queue")
	}

	// 3. Idempotency store and manager
	var store idempotency.Store
	switch cfg.Idempotency.Backend {
	case "redis":
		store = redisclient.NewStore(redisClient)
	case "postgres":
		store = postgres.NewStore(db)
	default:
		store = idempotency.NewMemoryStore()
	}
	idem := idempotency.NewManager(store, cfg.Idempotency.TTL, log)

	// 4. Resilience stack
	breakers := breaker.NewRegistry(cfg.Breaker.Config(), log)
	exec := retry.NewExecutor(cfg.Retry.Policy(), log)
	dispatcher := downstream.NewDispatcher(breakers, exec, log)

	var grpcCallers []*downstream.GRPCCaller
	for _, t := range cfg.Targets {
		if t.Breaker != nil {
			breakers.Configure(t.Name, t.Breaker.Config())
		}
		switch t.Kind {
		case "grpc":
			c, err := downstream.NewGRPCCaller(ctx, t.Name, t.Endpoint, t.Method)
			if err != nil {
				return nil, fmt.Errorf("failed to init grpc target %s: %w", t.Name, err)
			}
			grpcCallers = append(grpcCallers, c)
			dispatcher.Register(c)
		default:
			dispatcher.Register(downstream.NewHTTPCaller(t.Name, t.Endpoint, t.Timeout))
		}
		slog.Info("Registered target", "name", t.Name, "kind", t.Kind)
	}

	// 5. Completion pipeline
	var pub consumer.CompletionPublisher
	if cfg.FollowUp.Stream != "" {
		pub = redisclient.NewCompletionPublisher(redisClient, cfg.FollowUp.Stream)
	} else {
		pub = consumer.NewLogPublisher(log)
	}
	followUp := consumer.NewFollowUpWorker(cfg.FollowUp.Buffer, pub, log)

	// 6. Poller and health surface
	collector := metrics.NewCollector()
	poller := consumer.NewPoller(consumer.Config{
		PollInterval:    cfg.Queue.PollInterval,
		BatchSize:       cfg.Queue.BatchSize,
		WaitTime:        cfg.Queue.WaitTime,
		DefaultTarget:   cfg.Queue.DefaultTarget,
		RetryFailedKeys: cfg.RetryFailedKeys(),
	}, q, idem, dispatcher, collector, followUp.Completions(), log)

	healthServer := health.NewServer(collector, breakers, cfg.Server.Port)

	return &Relay{
		cfg:          cfg,
		queue:        q,
		poller:       poller,
		followUp:     followUp,
		dispatcher:   dispatcher,
		breakers:     breakers,
		collector:    collector,
		healthServer: healthServer,
		redisClient:  redisClient,
		db:           db,
		grpcCallers:  grpcCallers,
		log:          log,
	}, nil
}

// Start starts the relay and all its components.
func (r *Relay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	go func() {
		if err := r.healthServer.Start(); err != nil {
			r.log.Error("Health server failed", "error", err)
		}
	}()

	r.followUp.Start(ctx)

	r.log.Info("Starting poller",
		"queue", r.cfg.Queue.Backend,
		"targets", r.dispatcher.Targets())
	go r.poller.Run(ctx)

	return nil
}

// Stop stops the relay. The poller drains first so nothing sends on the
// completion channel after the follow-up worker closes it.
func (r *Relay) Stop(ctx context.Context) error {
	r.log.Info("Stopping Relay...")

	if r.cancel != nil {
		r.cancel()
	}
	r.poller.Stop()
	r.followUp.Stop()

	for _, c := range r.grpcCallers {
		if err := c.Close(); err != nil {
			r.log.Warn("Failed to close grpc connection", "error", err)
		}
	}
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close database", "error", err)
		}
	}

	return r.healthServer.Stop(ctx)
}

// Collector exposes the in-process counters for status reporting.
func (r *Relay) Collector() *metrics.Collector {
	return r.collector
}

// Breakers exposes the breaker registry for status reporting.
func (r *Relay) Breakers() *breaker.Registry {
	return r.breakers
}

// Poll runs one poll cycle synchronously. Used by tests.
func (r *Relay) Poll(ctx context.Context) {
	r.poller.Poll(ctx)
}

// Publish enqueues a raw message when the configured queue backend supports
// publishing. Used by tests and seeding tools.
func (r *Relay) Publish(ctx context.Context, body []byte) error {
	pub, ok := r.queue.(queue.Publisher)
	if !ok {
		return fmt.Errorf("queue backend %s does not support publishing", r.cfg.Queue.Backend)
	}
	return pub.Publish(ctx, body)
}
