// Package config loads toolmesh configuration from YAML files.
//
// ${VAR} references are expanded from the environment before parsing and
// duration fields accept Go duration strings such as "30s".
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/telemetry"
	"github.com/hupe1980/toolmesh/timeout"
)

// Store kinds accepted by vector_store.kind and memory.kind.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the complete toolmesh configuration.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Streaming   StreamingConfig   `yaml:"streaming"`
	Tools       ToolsConfig       `yaml:"tools"`
	VectorStore StoreConfig       `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Memory      StoreConfig       `yaml:"memory"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     telemetry.Config  `yaml:"tracing"`
}

// CoordinatorConfig configures the top-level executor.
type CoordinatorConfig struct {
	SystemPrompt string     `yaml:"system_prompt"`
	Provider     model.Kind `yaml:"provider"`
	Model        string     `yaml:"model"`
	Temperature  *float64   `yaml:"temperature"`
	APIKey       string     `yaml:"api_key"`
	BaseURL      string     `yaml:"base_url"`
	UseMemory    *bool      `yaml:"use_memory"`

	StartupDelay    time.Duration `yaml:"-"`
	StartupDelayRaw string        `yaml:"startup_delay"`
}

// ModelProvider maps the coordinator model settings onto a model.Provider.
func (c CoordinatorConfig) ModelProvider() model.Provider {
	return model.Provider{
		Kind:        c.Provider,
		Name:        c.Model,
		Temperature: c.Temperature,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
	}
}

// MemoryEnabled reports the use_memory flag, which defaults to true.
func (c CoordinatorConfig) MemoryEnabled() bool {
	return c.UseMemory == nil || *c.UseMemory
}

// StreamingConfig toggles token streaming of coordinator replies.
type StreamingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ToolsConfig holds the global tool policies.
type ToolsConfig struct {
	Streaming bool          `yaml:"streaming"`
	Timeout   TimeoutConfig `yaml:"timeout"`
}

// TimeoutConfig is the global tool timeout policy.
type TimeoutConfig struct {
	Enabled bool `yaml:"enabled"`

	Duration    time.Duration `yaml:"-"`
	DurationRaw string        `yaml:"duration"`
}

// Policy converts the configuration into a timeout.Policy.
func (t TimeoutConfig) Policy() timeout.Policy {
	return timeout.Policy{Enabled: t.Enabled, Duration: t.Duration}
}

// StoreConfig selects a store implementation.
type StoreConfig struct {
	Kind string `yaml:"kind"` // memory | sqlite
	Path string `yaml:"path"`
}

// EmbeddingConfig selects the embedder used by the vector store. An empty
// provider disables embeddings and the store falls back to keyword scoring.
type EmbeddingConfig struct {
	Provider model.Kind `yaml:"provider"` // openai | local
	Model    string     `yaml:"model"`
	APIKey   string     `yaml:"api_key"`
	BaseURL  string     `yaml:"base_url"`
}

// BreakerConfig configures the circuit breaker around every model.
type BreakerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxFailures uint32 `yaml:"max_failures"`

	Timeout     time.Duration `yaml:"-"`
	Interval    time.Duration `yaml:"-"`
	TimeoutRaw  string        `yaml:"timeout"`
	IntervalRaw string        `yaml:"interval"`
}

// Model converts the configuration into model.BreakerConfig.
func (b BreakerConfig) Model() model.BreakerConfig {
	return model.BreakerConfig{MaxFailures: b.MaxFailures, Timeout: b.Timeout, Interval: b.Interval}
}

// RateLimitConfig throttles model calls. A zero rate disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxCalls          int     `yaml:"max_calls"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Logger builds a ComponentLogger writing to stderr.
func (l LoggingConfig) Logger() *logging.ComponentLogger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(l.Level)
	if l.Format != "" {
		cfg.Format = l.Format
	}
	cfg.Component = "toolmesh"
	return logging.New(cfg)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Provider:     model.KindOpenAI,
			StartupDelay: 2 * time.Second,
		},
		Tools: ToolsConfig{
			Timeout: TimeoutConfig{Duration: 30 * time.Second},
		},
		VectorStore: StoreConfig{Kind: StoreMemory},
		Memory:      StoreConfig{Kind: StoreMemory},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
		Tracing:     telemetry.Config{Exporter: "noop"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML data on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Coordinator.Provider {
	case model.KindOpenAI, model.KindAnthropic, model.KindLocal:
	case model.KindCustom:
		return fmt.Errorf("coordinator.provider %q cannot be configured from a file", c.Coordinator.Provider)
	default:
		return fmt.Errorf("coordinator.provider %q is not supported", c.Coordinator.Provider)
	}

	if t := c.Coordinator.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("coordinator.temperature must be between 0 and 2")
	}

	if c.Tools.Timeout.Enabled && c.Tools.Timeout.Duration <= 0 {
		return fmt.Errorf("tools.timeout.duration must be positive when the timeout is enabled")
	}

	for name, s := range map[string]StoreConfig{"vector_store": c.VectorStore, "memory": c.Memory} {
		switch s.Kind {
		case StoreMemory:
		case StoreSQLite:
			if s.Path == "" {
				return fmt.Errorf("%s.path is required for kind sqlite", name)
			}
		default:
			return fmt.Errorf("%s.kind %q is not supported", name, s.Kind)
		}
	}

	switch c.Embedding.Provider {
	case "", model.KindOpenAI, model.KindLocal:
	default:
		return fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider)
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 || c.RateLimit.MaxCalls < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	switch c.Tracing.Exporter {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("tracing.exporter %q is not supported", c.Tracing.Exporter)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"coordinator.startup_delay", cfg.Coordinator.StartupDelayRaw, &cfg.Coordinator.StartupDelay},
		{"tools.timeout.duration", cfg.Tools.Timeout.DurationRaw, &cfg.Tools.Timeout.Duration},
		{"breaker.timeout", cfg.Breaker.TimeoutRaw, &cfg.Breaker.Timeout},
		{"breaker.interval", cfg.Breaker.IntervalRaw, &cfg.Breaker.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}

		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
