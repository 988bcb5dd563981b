package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "relay"
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 5 * time.Second
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.WaitTime == 0 {
		cfg.Queue.WaitTime = time.Second
	}
	if cfg.Queue.Visibility == 0 {
		cfg.Queue.Visibility = 30 * time.Second
	}
	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.FollowUp.Buffer == 0 {
		cfg.FollowUp.Buffer = 100
	}
	for i := range cfg.Targets {
		if cfg.Targets[i].Kind == "" {
			cfg.Targets[i].Kind = "http"
		}
		if cfg.Targets[i].Timeout == 0 {
			cfg.Targets[i].Timeout = 10 * time.Second
		}
	}
}
