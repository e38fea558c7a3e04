package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.RateLimit.Default.PerMinute != 60 {
		t.Errorf("expected 60/min, got %d", cfg.RateLimit.Default.PerMinute)
	}
	if cfg.Budget.Daily != 50 || cfg.Budget.Monthly != 200 {
		t.Errorf("unexpected budget defaults: %+v", cfg.Budget)
	}
	if cfg.Orchestrator.Axes.Size() != 540 {
		t.Errorf("expected 540 default variants, got %d", cfg.Orchestrator.Axes.Size())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
listen: ":9090"
db_path: "test.db"
providers:
  - name: claude
    type: anthropic
    api_key: ${TEST_API_KEY}
    timeout: 30s
    max_retries: 2
cache:
  volatile:
    backend: redis
    addr: localhost:6379
  warm_ttl: 30m
rate_limit:
  default:
    per_minute: 5
    per_hour: 100
    per_day: 1000
budget:
  daily: 1.5
orchestrator:
  concurrency: 8
  axes:
    age_groups: [age_8, age_12]
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[0].Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Providers[0].Timeout)
	}
	if cfg.Cache.WarmTTL != 30*time.Minute {
		t.Errorf("expected 30m warm TTL, got %v", cfg.Cache.WarmTTL)
	}
	if cfg.Cache.Durable.Backend != "sqlite" {
		t.Errorf("durable default lost: %q", cfg.Cache.Durable.Backend)
	}
	if cfg.RateLimit.Default.PerMinute != 5 {
		t.Errorf("expected 5/min, got %d", cfg.RateLimit.Default.PerMinute)
	}
	if cfg.Budget.Daily != 1.5 || cfg.Budget.Monthly != 200 {
		t.Errorf("unexpected budget: %+v", cfg.Budget)
	}
	if cfg.Orchestrator.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Orchestrator.Concurrency)
	}
	if got := len(cfg.Orchestrator.Axes.AgeGroups); got != 2 {
		t.Errorf("expected 2 age groups, got %d", got)
	}
	if got := len(cfg.Orchestrator.Axes.Tones); got != 3 {
		t.Errorf("tone defaults lost, got %d", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown provider type": func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "x", Type: "grpc"}}
		},
		"route to unknown provider": func(c *Config) {
			c.Router.Routes = []RouteConfig{{Model: "m", Targets: []RouteTarget{{Provider: "nope"}}}}
		},
		"redis without addr": func(c *Config) {
			c.Cache.Volatile.Backend = "redis"
		},
		"zero concurrency": func(c *Config) {
			c.Orchestrator.Concurrency = 0
		},
		"empty axis": func(c *Config) {
			c.Orchestrator.Axes.Choices = nil
		},
		"threshold above 100": func(c *Config) {
			c.Budget.AlertThreshold = 120
		},
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}
