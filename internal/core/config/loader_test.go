package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad_EnvSubstitution(t *testing.T) {
	os.Setenv("TEST_ORDERS_URL", "http://orders.internal:8080/apply")
	defer os.Unsetenv("TEST_ORDERS_URL")

	path := writeConfig(t, `
targets:
  - name: orders-api
    endpoint: ${TEST_ORDERS_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Targets[0].Endpoint != "http://orders.internal:8080/apply" {
		t.Errorf("Expected expanded endpoint, got %s", cfg.Targets[0].Endpoint)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
targets:
  - name: orders-api
    endpoint: http://localhost:9000/apply
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Queue.Backend != "memory" || cfg.Queue.BatchSize != 10 || cfg.Queue.PollInterval != 5*time.Second {
		t.Errorf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Idempotency.Backend != "memory" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("idempotency defaults = %+v", cfg.Idempotency)
	}
	if !cfg.RetryFailedKeys() {
		t.Error("retry_failed should default to true")
	}
	if cfg.Targets[0].Kind != "http" || cfg.Targets[0].Timeout != 10*time.Second {
		t.Errorf("target defaults = %+v", cfg.Targets[0])
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no targets", `
queue:
  backend: memory
`},
		{"unknown queue backend", `
queue:
  backend: sqs
targets:
  - name: orders-api
    endpoint: http://localhost:9000
`},
		{"redis queue without url", `
queue:
  backend: redis
targets:
  - name: orders-api
    endpoint: http://localhost:9000
`},
		{"postgres store without url", `
idempotency:
  backend: postgres
targets:
  - name: orders-api
    endpoint: http://localhost:9000
`},
		{"grpc target without method", `
targets:
  - name: orders-api
    kind: grpc
    endpoint: localhost:9000
`},
		{"duplicate target", `
targets:
  - name: orders-api
    endpoint: http://localhost:9000
  - name: orders-api
    endpoint: http://localhost:9001
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRetryConfigPolicy(t *testing.T) {
	off := false
	c := RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second, Jitter: &off}
	p := c.Policy()
	if p.MaxAttempts != 5 || p.BaseDelay != 2*time.Second || p.Jitter {
		t.Errorf("policy = %+v", p)
	}
	// Omitted fields keep the defaults.
	if p.MaxDelay != 60*time.Second || p.ExponentialBase != 2.0 {
		t.Errorf("policy defaults = %+v", p)
	}
}
