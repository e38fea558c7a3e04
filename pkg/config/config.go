package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilearnhow/lessongen/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all lessongen configuration.
type Config struct {
	Listen       string             `yaml:"listen"`
	DBPath       string             `yaml:"db_path"`
	Log          LogConfig          `yaml:"log"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Router       RouterConfig       `yaml:"router"`
	Cache        CacheConfig        `yaml:"cache"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Budget       BudgetConfig       `yaml:"budget"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Audit        AuditConfig        `yaml:"audit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// RouterConfig defines model routing and fallback chains.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig maps a model alias to an ordered list of targets.
type RouteConfig struct {
	Model   string        `yaml:"model"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ProviderConfig defines a remote text-generation provider.
// Type is "anthropic" (default) or "openai".
type ProviderConfig struct {
	Name       string              `yaml:"name"`
	Type       string              `yaml:"type"`
	URL        string              `yaml:"url"`
	APIKey     string              `yaml:"api_key"`
	Timeout    time.Duration       `yaml:"timeout"`
	MaxRetries int                 `yaml:"max_retries"`
	Pricing    models.ModelPricing `yaml:"pricing"`
}

// CacheConfig selects and tunes the two cache tiers.
type CacheConfig struct {
	Volatile   VolatileConfig `yaml:"volatile"`
	Durable    DurableConfig  `yaml:"durable"`
	ContentTTL time.Duration  `yaml:"content_ttl"`
	WarmTTL    time.Duration  `yaml:"warm_ttl"`
}

// VolatileConfig configures tier A. Backend is "memory" or "redis".
type VolatileConfig struct {
	Backend  string `yaml:"backend"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DurableConfig configures tier B. Backend is "sqlite" or "badger".
type DurableConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RateLimitConfig holds the default quotas and the prefix tiers.
type RateLimitConfig struct {
	Default models.RateLimits `yaml:"default"`
	Tiers   []models.RateTier `yaml:"tiers"`
}

// BudgetConfig controls spend ceilings.
type BudgetConfig struct {
	Daily          float64 `yaml:"daily"`
	Monthly        float64 `yaml:"monthly"`
	MaxCostPerCall float64 `yaml:"max_cost_per_call"`
	AlertThreshold float64 `yaml:"alert_threshold"` // percent of a ceiling
}

// Limits returns the ceilings as a models.BudgetLimits.
func (b BudgetConfig) Limits() models.BudgetLimits {
	return models.BudgetLimits{Daily: b.Daily, Monthly: b.Monthly, MaxCostPerCall: b.MaxCostPerCall}
}

// OrchestratorConfig controls batch generation.
type OrchestratorConfig struct {
	ClientID           string            `yaml:"client_id"`
	Model              string            `yaml:"model"`
	Concurrency        int               `yaml:"concurrency"`
	MaxTokens          int               `yaml:"max_tokens"`
	Temperature        float64           `yaml:"temperature"`
	FortuneMaxTokens   int               `yaml:"fortune_max_tokens"`
	FortuneTemperature float64           `yaml:"fortune_temperature"`
	CallTimeout        time.Duration     `yaml:"call_timeout"`
	Pace               float64           `yaml:"pace"` // remote calls per second, 0 disables
	TemplateVersion    string            `yaml:"template_version"`
	Axes               models.AxisConfig `yaml:"axes"`
	CatalogPath        string            `yaml:"catalog_path"`
}

// SchedulerConfig controls background jobs. Schedules use cron syntax.
type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pregenerate string `yaml:"pregenerate"`
	Reconcile   string `yaml:"reconcile"`
	LeadDays    int    `yaml:"lead_days"`
}

// AuditConfig controls the attempt ledger.
type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "lessongen.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Volatile:   VolatileConfig{Backend: "memory"},
			Durable:    DurableConfig{Backend: "sqlite", Path: "lessongen-cache.db"},
			ContentTTL: 30 * 24 * time.Hour,
			WarmTTL:    24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Default: models.RateLimits{PerMinute: 60, PerHour: 1000, PerDay: 10000},
			Tiers: []models.RateTier{
				{Name: "premium", Prefix: "premium_", Limits: models.RateLimits{PerMinute: 120, PerHour: 2000, PerDay: 20000}},
				{Name: "enterprise", Prefix: "enterprise_", Limits: models.RateLimits{PerMinute: 300, PerHour: 5000, PerDay: 50000}},
			},
		},
		Budget: BudgetConfig{
			Daily:          50,
			Monthly:        200,
			MaxCostPerCall: 0.05,
			AlertThreshold: 90,
		},
		Orchestrator: OrchestratorConfig{
			ClientID:           "lesson_generator",
			Model:              "claude-3-5-sonnet-20241022",
			Concurrency:        4,
			MaxTokens:          800,
			Temperature:        0.8,
			FortuneMaxTokens:   200,
			FortuneTemperature: 0.9,
			CallTimeout:        60 * time.Second,
			TemplateVersion:    "v1",
			Axes:               models.DefaultAxes(),
		},
		Scheduler: SchedulerConfig{
			Pregenerate: "0 2 * * *",
			Reconcile:   "*/15 * * * *",
			LeadDays:    1,
		},
		Audit: AuditConfig{
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("%w: providers[%d] has no name", ErrInvalid, i)
		}
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate provider %q", ErrInvalid, p.Name)
		}
		names[p.Name] = true
		switch p.Type {
		case "", "anthropic", "openai":
		default:
			return fmt.Errorf("%w: provider %q has unknown type %q", ErrInvalid, p.Name, p.Type)
		}
		if p.MaxRetries < 0 {
			return fmt.Errorf("%w: provider %q has negative max_retries", ErrInvalid, p.Name)
		}
	}
	for _, r := range c.Router.Routes {
		if len(r.Targets) == 0 {
			return fmt.Errorf("%w: route %q has no targets", ErrInvalid, r.Model)
		}
		for _, t := range r.Targets {
			if !names[t.Provider] {
				return fmt.Errorf("%w: route %q references unknown provider %q", ErrInvalid, r.Model, t.Provider)
			}
		}
	}

	switch c.Cache.Volatile.Backend {
	case "memory":
	case "redis":
		if c.Cache.Volatile.Addr == "" {
			return fmt.Errorf("%w: redis volatile tier needs an addr", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown volatile backend %q", ErrInvalid, c.Cache.Volatile.Backend)
	}
	switch c.Cache.Durable.Backend {
	case "sqlite", "badger":
		if c.Cache.Durable.Path == "" {
			return fmt.Errorf("%w: durable tier needs a path", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown durable backend %q", ErrInvalid, c.Cache.Durable.Backend)
	}

	if err := validateLimits("default", c.RateLimit.Default); err != nil {
		return err
	}
	for _, t := range c.RateLimit.Tiers {
		if t.Prefix == "" {
			return fmt.Errorf("%w: rate tier %q has no prefix", ErrInvalid, t.Name)
		}
		if err := validateLimits(t.Name, t.Limits); err != nil {
			return err
		}
	}

	if c.Budget.Daily <= 0 || c.Budget.Monthly <= 0 {
		return fmt.Errorf("%w: budget ceilings must be positive", ErrInvalid)
	}
	if c.Budget.AlertThreshold <= 0 || c.Budget.AlertThreshold > 100 {
		return fmt.Errorf("%w: alert_threshold must be in (0, 100]", ErrInvalid)
	}

	o := c.Orchestrator
	if o.Concurrency < 1 {
		return fmt.Errorf("%w: orchestrator concurrency must be at least 1", ErrInvalid)
	}
	if o.MaxTokens < 1 || o.FortuneMaxTokens < 1 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalid)
	}
	if o.Pace < 0 {
		return fmt.Errorf("%w: pace must not be negative", ErrInvalid)
	}
	if o.Axes.Size() == 0 {
		return fmt.Errorf("%w: every variant axis needs at least one value", ErrInvalid)
	}
	return nil
}

func validateLimits(name string, l models.RateLimits) error {
	if l.PerMinute < 1 || l.PerHour < 1 || l.PerDay < 1 {
		return fmt.Errorf("%w: rate limits %q must be positive", ErrInvalid, name)
	}
	return nil
}
