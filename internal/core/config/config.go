package config

import (
	"fmt"
	"time"

	postgres "github.com/vietddude/relay/internal/infra/postgres"
	redisclient "github.com/vietddude/relay/internal/infra/redis"
	"github.com/vietddude/relay/internal/resilience/backoff"
	"github.com/vietddude/relay/internal/resilience/breaker"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Queue       QueueConfig        `yaml:"queue"`
	Redis       redisclient.Config `yaml:"redis"`
	Database    postgres.Config    `yaml:"database"`
	Idempotency IdempotencyConfig  `yaml:"idempotency"`
	Retry       RetryConfig        `yaml:"retry"`
	Breaker     BreakerConfig      `yaml:"breaker"`
	FollowUp    FollowUpConfig     `yaml:"follow_up"`
	Targets     []TargetConfig     `yaml:"targets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds settings for the inbound message queue.
type QueueConfig struct {
	Backend       string        `yaml:"backend"` // memory, redis
	Name          string        `yaml:"name"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	WaitTime      time.Duration `yaml:"wait_time"`
	Visibility    time.Duration `yaml:"visibility"` // redelivery delay after a receive
	DefaultTarget string        `yaml:"default_target"`
}

// IdempotencyConfig holds settings for the idempotency store.
type IdempotencyConfig struct {
	Backend string        `yaml:"backend"` // memory, redis, postgres
	TTL     time.Duration `yaml:"ttl"`
	// RetryFailed controls whether FAILED keys are reprocessed on
	// redelivery. Defaults to true when omitted.
	RetryFailed *bool `yaml:"retry_failed"`
}

// RetryConfig holds the backoff policy for downstream deliveries.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base"`
	// Jitter randomizes each delay. Defaults to true when omitted.
	Jitter *bool `yaml:"jitter"`
}

// Policy converts the config into a backoff policy.
func (c RetryConfig) Policy() backoff.Policy {
	p := backoff.DefaultPolicy
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay > 0 {
		p.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	if c.ExponentialBase > 0 {
		p.ExponentialBase = c.ExponentialBase
	}
	if c.Jitter != nil {
		p.Jitter = *c.Jitter
	}
	return p
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// Config converts the config into breaker settings, filling defaults.
func (c BreakerConfig) Config() breaker.Config {
	cfg := breaker.DefaultConfig
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.SuccessThreshold > 0 {
		cfg.SuccessThreshold = c.SuccessThreshold
	}
	if c.ResetTimeout > 0 {
		cfg.ResetTimeout = c.ResetTimeout
	}
	if c.CallTimeout > 0 {
		cfg.CallTimeout = c.CallTimeout
	}
	return cfg
}

// FollowUpConfig holds settings for the completion event pipeline.
type FollowUpConfig struct {
	Buffer int    `yaml:"buffer"`
	Stream string `yaml:"stream"` // redis stream name; empty = log only
}

// TargetConfig holds settings for one downstream service.
type TargetConfig struct {
	Name     string         `yaml:"name"`
	Kind     string         `yaml:"kind"` // http, grpc
	Endpoint string         `yaml:"endpoint"`
	Method   string         `yaml:"method"` // grpc full method, e.g. /orders.Orders/Apply
	Timeout  time.Duration  `yaml:"timeout"`
	Breaker  *BreakerConfig `yaml:"breaker"` // per-target override
}

// Validate checks the configuration for fatal errors. Invalid configuration
// aborts startup rather than degrading at runtime.
func (c *AppConfig) Validate() error {
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("queue backend is redis but redis.url is not set")
		}
	default:
		return fmt.Errorf("unknown queue backend %q (expected memory or redis)", c.Queue.Backend)
	}

	switch c.Idempotency.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("idempotency backend is redis but redis.url is not set")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("idempotency backend is postgres but database.url is not set")
		}
	default:
		return fmt.Errorf("unknown idempotency backend %q (expected memory, redis or postgres)", c.Idempotency.Backend)
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = true
		if t.Endpoint == "" {
			return fmt.Errorf("target %s: endpoint is required", t.Name)
		}
		switch t.Kind {
		case "http":
		case "grpc":
			if t.Method == "" {
				return fmt.Errorf("target %s: grpc targets require a method", t.Name)
			}
		default:
			return fmt.Errorf("target %s: unknown kind %q (expected http or grpc)", t.Name, t.Kind)
		}
	}

	if c.FollowUp.Stream != "" && c.Redis.URL == "" {
		return fmt.Errorf("follow_up.stream is set but redis.url is not")
	}
	return nil
}

// RetryFailedKeys reports the effective FAILED-key policy.
func (c *AppConfig) RetryFailedKeys() bool {
	if c.Idempotency.RetryFailed == nil {
		return true
	}
	return *c.Idempotency.RetryFailed
}
