// Package toolmesh wires tools, agents and a coordinator into one runtime.
//
// Most applications:
//  1. Create a Mesh via New (or FromConfig) choosing the coordinator model,
//     stores and the global streaming and timeout policies
//  2. Register tool providers and agent descriptors
//  3. Call Start once registration is done, then ProcessMessage per request
//
// Tool calls made by agents run through execution envelopes sharing the
// Mesh's timeout manager and stream multiplexer, so OnToolUpdate observes
// every tool execution and OnTimeout every expired deadline.
package toolmesh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/toolmesh/agent"
	"github.com/hupe1980/toolmesh/coordinator"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/model/anthropic"
	"github.com/hupe1980/toolmesh/model/openai"
	"github.com/hupe1980/toolmesh/stream"
	"github.com/hupe1980/toolmesh/timeout"
	"github.com/hupe1980/toolmesh/tool"
)

// Options configures the Mesh instance.
type Options struct {
	// Coordinator settings. An empty SystemPrompt keeps the default prompt.
	SystemPrompt string
	Provider     model.Provider
	UseMemory    bool
	StartupDelay time.Duration

	// Streaming enables token streaming of coordinator replies to OnToken.
	Streaming bool
	OnToken   func(token string)

	// ToolStreaming enables tool updates; tool descriptors may override it.
	// OnToolUpdate receives every update of every tool.
	ToolStreaming bool
	OnToolUpdate  stream.Handler

	// ToolTimeout is the global tool timeout policy; OnTimeout is called
	// after each expired execution.
	ToolTimeout timeout.Policy
	OnTimeout   timeout.Callback

	// Memory defaults to an in-memory history store.
	Memory core.HistoryStore
	// VectorStore backs agents with retrieval enabled.
	VectorStore core.VectorStore

	// Models defaults to NewModelFactory().
	Models *model.Factory
	// Breaker, when set, wraps every model in a circuit breaker.
	Breaker *model.BreakerConfig
	// Limiter, when set, throttles every model call.
	Limiter *core.CallLimiter

	MaxParallelTools int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating registries, the coordinator and
// the shared tool execution infrastructure.
type Mesh struct {
	opts        Options
	logger      logging.Logger
	tools       *tool.Registry
	agents      *agent.Registry
	factory     *agent.Factory
	coordinator *coordinator.Coordinator
	mux         *stream.Multiplexer
	timeouts    *timeout.Manager
	envelope    tool.EnvelopeOptions
	unsubscribe func()
	closers     []func() error
}

// NewModelFactory returns a model factory with the openai, anthropic and
// local providers registered.
func NewModelFactory() *model.Factory {
	f := model.NewFactory()
	f.Register(model.KindOpenAI, openai.FromProvider)
	f.Register(model.KindAnthropic, anthropic.FromProvider)
	f.Register(model.KindLocal, openai.LocalFromProvider)
	return f
}

// New creates a Mesh. Unset stores default to in-memory implementations.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		UseMemory:    true,
		StartupDelay: coordinator.DefaultStartupDelay,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ToolTimeout.Enabled && opts.ToolTimeout.Duration <= 0 {
		return nil, errors.New("tool timeout enabled without a positive duration")
	}

	logger := logging.OrNoOp(opts.Logger)

	if opts.Models == nil {
		opts.Models = NewModelFactory()
	}
	if opts.Breaker != nil {
		opts.Models.Use(model.BreakerMiddleware(*opts.Breaker, logger))
	}
	if opts.Limiter != nil {
		opts.Models.Use(model.LimitMiddleware(opts.Limiter))
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore()
	}

	mux := stream.NewMultiplexer(func(o *stream.Options) { o.Logger = logger })

	var unsubscribe func()
	if opts.OnToolUpdate != nil {
		unsubscribe = mux.SubscribeGlobal(opts.OnToolUpdate)
	}

	timeouts := timeout.NewManager(func(o *timeout.Options) {
		o.Global = opts.ToolTimeout
		o.OnTimeout = opts.OnTimeout
		o.Logger = logger
	})

	envelope := tool.EnvelopeOptions{
		Streaming:   opts.ToolStreaming,
		Multiplexer: mux,
		Timeouts:    timeouts,
		Logger:      logger,
	}

	agents := agent.NewRegistry()
	factory := agent.NewFactory(func(o *agent.FactoryOptions) {
		o.Models = opts.Models
		o.Memory = opts.Memory
		o.VectorStore = opts.VectorStore
		o.Envelope = envelope
		o.MaxParallelTools = opts.MaxParallelTools
		o.Logger = logger
	})

	coord := coordinator.New(agents, factory, func(o *coordinator.Options) {
		if opts.SystemPrompt != "" {
			o.SystemPrompt = opts.SystemPrompt
		}
		o.Provider = opts.Provider
		o.UseMemory = opts.UseMemory
		o.StartupDelay = opts.StartupDelay
		o.Streaming = opts.Streaming
		o.OnToken = opts.OnToken
		o.Logger = logger
	})

	return &Mesh{
		opts:        opts,
		logger:      logger,
		tools:       tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = logger }),
		agents:      agents,
		factory:     factory,
		coordinator: coord,
		mux:         mux,
		timeouts:    timeouts,
		envelope:    envelope,
		unsubscribe: unsubscribe,
	}, nil
}

// RegisterTools collects the tools of p into the tool registry. Definitions
// that fail to build are logged and skipped.
func (m *Mesh) RegisterTools(p tool.Provider) []tool.Tool { return m.tools.Register(p) }

// RegisterTool adds one prebuilt tool.
func (m *Mesh) RegisterTool(t tool.Tool) error { return m.tools.RegisterTool(t) }

// RegisterAgent builds desc and adds it to the agent registry. A failure
// affects only this agent and is returned as *core.AgentInitializationError.
// toolNames add registered tools by name to desc.Tools.
func (m *Mesh) RegisterAgent(desc agent.Descriptor, toolNames ...string) error {
	if len(toolNames) > 0 {
		found := m.tools.Lookup(toolNames...)
		if len(found) != len(toolNames) {
			return &core.AgentInitializationError{Agent: desc.Name, Err: fmt.Errorf("unknown tool among %v", toolNames)}
		}
		desc.Tools = append(append([]tool.Tool(nil), desc.Tools...), found...)
	}

	a, err := m.factory.Build(desc)
	if err != nil {
		return err
	}

	return m.agents.Register(a)
}

// Start schedules the deferred coordinator initialization.
func (m *Mesh) Start(ctx context.Context) { m.coordinator.Start(ctx) }

// ProcessMessage routes text through the coordinator.
func (m *Mesh) ProcessMessage(ctx context.Context, text string, optFns ...coordinator.MessageOption) (string, error) {
	return m.coordinator.ProcessMessage(ctx, text, optFns...)
}

// CallTool runs a registered tool through an execution envelope and returns
// its textual result. Only an unknown tool name is reported as error.
func (m *Mesh) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := m.tools.Get(name)
	if !ok {
		return "", fmt.Errorf("tool %q not registered", name)
	}

	return tool.NewEnvelope(t, func(o *tool.EnvelopeOptions) { *o = m.envelope }).Execute(ctx, args), nil
}

// Tools returns the tool registry.
func (m *Mesh) Tools() *tool.Registry { return m.tools }

// Agents returns the agent registry.
func (m *Mesh) Agents() *agent.Registry { return m.agents }

// Coordinator returns the coordinator.
func (m *Mesh) Coordinator() *coordinator.Coordinator { return m.coordinator }

// Multiplexer returns the stream multiplexer carrying tool updates.
func (m *Mesh) Multiplexer() *stream.Multiplexer { return m.mux }

// Timeouts returns the timeout manager shared by all tool executions.
func (m *Mesh) Timeouts() *timeout.Manager { return m.timeouts }

// Memory returns the session history store.
func (m *Mesh) Memory() core.HistoryStore { return m.opts.Memory }

// Close stops the coordinator timer, the multiplexer and any store opened
// by FromConfig.
func (m *Mesh) Close() error {
	m.coordinator.Stop()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mux.Close()

	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
