package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "toolmesh.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TOOLMESH_TEST_KEY", "sk-test")

	path := writeConfig(t, `
coordinator:
  system_prompt: "Route requests."
  provider: anthropic
  model: claude-3-5-haiku-latest
  temperature: 0.2
  api_key: "${TOOLMESH_TEST_KEY}"
  use_memory: false
  startup_delay: 500ms

streaming:
  enabled: true

tools:
  streaming: true
  timeout:
    enabled: true
    duration: 50ms

vector_store:
  kind: sqlite
  path: ./vectors.db

embedding:
  provider: openai
  model: text-embedding-3-small

memory:
  kind: sqlite
  path: ./history.db

breaker:
  enabled: true
  max_failures: 3
  timeout: 10s
  interval: 1m

rate_limit:
  requests_per_second: 2.5
  burst: 5
  max_calls: 100

logging:
  level: debug
  format: json

tracing:
  enabled: true
  exporter: stdout
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Coordinator.APIKey != "sk-test" {
		t.Errorf("Coordinator.APIKey = %q, want %q", cfg.Coordinator.APIKey, "sk-test")
	}
	if cfg.Coordinator.StartupDelay != 500*time.Millisecond {
		t.Errorf("Coordinator.StartupDelay = %v, want 500ms", cfg.Coordinator.StartupDelay)
	}

	assert.False(t, cfg.Coordinator.MemoryEnabled())
	assert.True(t, cfg.Streaming.Enabled)

	p := cfg.Coordinator.ModelProvider()
	assert.Equal(t, model.KindAnthropic, p.Kind)
	assert.Equal(t, "claude-3-5-haiku-latest", p.Name)
	require.NotNil(t, p.Temperature)
	assert.InDelta(t, 0.2, *p.Temperature, 1e-9)

	policy := cfg.Tools.Timeout.Policy()
	assert.True(t, policy.Active())
	assert.Equal(t, 50*time.Millisecond, policy.Duration)
	assert.True(t, cfg.Tools.Streaming)

	assert.Equal(t, StoreSQLite, cfg.VectorStore.Kind)
	assert.Equal(t, "./history.db", cfg.Memory.Path)
	assert.Equal(t, model.KindOpenAI, cfg.Embedding.Provider)

	bc := cfg.Breaker.Model()
	assert.Equal(t, uint32(3), bc.MaxFailures)
	assert.Equal(t, 10*time.Second, bc.Timeout)
	assert.Equal(t, time.Minute, bc.Interval)

	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 1e-9)
	assert.Equal(t, 100, cfg.RateLimit.MaxCalls)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("logging:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, model.KindOpenAI, cfg.Coordinator.Provider)
	assert.True(t, cfg.Coordinator.MemoryEnabled())
	assert.Equal(t, 2*time.Second, cfg.Coordinator.StartupDelay)
	assert.Equal(t, StoreMemory, cfg.Memory.Kind)
	assert.False(t, cfg.Tools.Timeout.Policy().Active())
	assert.Equal(t, 30*time.Second, cfg.Tools.Timeout.Duration)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("Load() error = %v, want reading error", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "coordinator: [", "parsing config file"},
		{"bad duration", "tools:\n  timeout:\n    duration: soon\n", "tools.timeout.duration"},
		{"unknown provider", "coordinator:\n  provider: mystery\n", "coordinator.provider"},
		{"custom provider", "coordinator:\n  provider: custom\n", "cannot be configured"},
		{"sqlite without path", "memory:\n  kind: sqlite\n", "memory.path is required"},
		{"unknown store", "vector_store:\n  kind: redis\n", "vector_store.kind"},
		{"zero timeout", "tools:\n  timeout:\n    enabled: true\n    duration: 0s\n", "must be positive"},
		{"temperature", "coordinator:\n  temperature: 3\n", "temperature"},
		{"exporter", "tracing:\n  exporter: jaeger\n", "tracing.exporter"},
		{"embedding", "embedding:\n  provider: anthropic\n", "embedding.provider"},
		{"negative rate", "rate_limit:\n  burst: -1\n", "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TOOLMESH_A", "alpha")

	got := expandEnvVars("a=${TOOLMESH_A} b=${TOOLMESH_UNSET_VAR}")
	if got != "a=alpha b=" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}
