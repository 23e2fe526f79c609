package toolmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/model/openai"
	"github.com/hupe1980/toolmesh/retrieval"
	"github.com/hupe1980/toolmesh/telemetry"
)

// FromConfig creates a Mesh from cfg. It installs the tracer provider and
// opens the configured stores; Close releases them. optFns run after the
// configuration has been applied and may override any of it.
func FromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var closers []func() error

	fail := func(err error) (*Mesh, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	logger := cfg.Logging.Logger()

	shutdown, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fail(fmt.Errorf("setup tracing: %w", err))
	}
	closers = append(closers, func() error { return shutdown(context.Background()) })

	var history core.HistoryStore
	switch cfg.Memory.Kind {
	case config.StoreSQLite:
		s, err := memory.NewSQLiteStore(cfg.Memory.Path)
		if err != nil {
			return fail(fmt.Errorf("open memory store: %w", err))
		}
		closers = append(closers, s.Close)
		history = s
	default:
		history = memory.NewInMemoryStore()
	}

	embedder := newEmbedder(cfg.Embedding)

	var vectors core.VectorStore
	switch cfg.VectorStore.Kind {
	case config.StoreSQLite:
		s, err := retrieval.NewSQLiteStore(cfg.VectorStore.Path, embedder)
		if err != nil {
			return fail(fmt.Errorf("open vector store: %w", err))
		}
		closers = append(closers, s.Close)
		vectors = s
	default:
		vectors = retrieval.NewInMemoryStore(embedder)
	}

	base := func(o *Options) {
		o.SystemPrompt = cfg.Coordinator.SystemPrompt
		o.Provider = cfg.Coordinator.ModelProvider()
		o.UseMemory = cfg.Coordinator.MemoryEnabled()
		o.StartupDelay = cfg.Coordinator.StartupDelay
		o.Streaming = cfg.Streaming.Enabled
		o.ToolStreaming = cfg.Tools.Streaming
		o.ToolTimeout = cfg.Tools.Timeout.Policy()
		o.Memory = history
		o.VectorStore = vectors
		o.Logger = logger

		if cfg.Breaker.Enabled {
			bc := cfg.Breaker.Model()
			o.Breaker = &bc
		}

		if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 || rl.MaxCalls > 0 {
			o.Limiter = core.NewCallLimiter(rl.MaxCalls, core.NewRateLimiter(rl.RequestsPerSecond, rl.Burst))
		}
	}

	m, err := New(append([]func(o *Options){base}, optFns...)...)
	if err != nil {
		return fail(err)
	}

	m.closers = closers

	return m, nil
}

// newEmbedder returns nil when no embedding provider is configured, which
// makes the vector stores rank by keyword overlap.
func newEmbedder(cfg config.EmbeddingConfig) core.Embedder {
	switch cfg.Provider {
	case model.KindOpenAI:
		return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	case model.KindLocal:
		return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
			o.Model = cfg.Model
			if o.Model == "" {
				o.Model = "nomic-embed-text"
			}
			o.BaseURL = cfg.BaseURL
			if o.BaseURL == "" {
				o.BaseURL = openai.DefaultLocalBaseURL
			}
			o.APIKey = cfg.APIKey
			if o.APIKey == "" {
				o.APIKey = "ollama"
			}
		})
	default:
		return nil
	}
}

// LoadConfig reads path, or returns config.Default when path is empty.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
