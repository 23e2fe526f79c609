package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/retrieval"
	"github.com/hupe1980/toolmesh/tool"
)

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	// Models resolves descriptor providers. Defaults to an empty
	// model.Factory, which only supports custom providers.
	Models *model.Factory
	// Memory backs agents with UseMemory. Defaults to an in-memory store.
	Memory core.HistoryStore
	// VectorStore backs agents with retrieval enabled.
	VectorStore core.VectorStore
	// Envelope is applied to every tool an agent is built with.
	Envelope tool.EnvelopeOptions
	// MaxParallelTools caps concurrent tool calls per model turn. 0 means
	// no cap.
	MaxParallelTools int
	Logger           logging.Logger
}

// Factory builds agents from descriptors.
type Factory struct {
	opts FactoryOptions
}

// NewFactory creates a Factory.
func NewFactory(optFns ...func(o *FactoryOptions)) *Factory {
	opts := FactoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Models == nil {
		opts.Models = model.NewFactory()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore()
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Envelope.Logger == nil {
		opts.Envelope.Logger = opts.Logger
	}

	return &Factory{opts: opts}
}

// Memory returns the history store shared by all built agents.
func (f *Factory) Memory() core.HistoryStore { return f.opts.Memory }

// Models returns the model factory.
func (f *Factory) Models() *model.Factory { return f.opts.Models }

// Build resolves the model and tools of desc and returns an executable
// agent. Every failure is reported as *core.AgentInitializationError.
func (f *Factory) Build(desc Descriptor) (*Agent, error) {
	a, err := f.build(desc)
	if err != nil {
		f.opts.Logger.Error("agent.build.failed", "agent", desc.Name, "error", err.Error())
		return nil, &core.AgentInitializationError{Agent: desc.Name, Err: err}
	}

	f.opts.Logger.Info(
		"agent.build.done",
		"agent", desc.Name,
		"provider", string(desc.Provider.Kind),
		"tools", len(a.tools),
		"memory", a.UsesMemory(),
		"retrieval", a.UsesRetrieval(),
	)

	return a, nil
}

func (f *Factory) build(desc Descriptor) (*Agent, error) {
	if desc.Name == "" {
		return nil, errors.New("agent name must not be empty")
	}

	m, err := f.opts.Models.New(desc.Provider)
	if err != nil {
		return nil, err
	}

	tools := append([]tool.Tool(nil), desc.Tools...)

	if desc.HistoryTool {
		if !desc.UseMemory {
			return nil, errors.New("history tool requires memory")
		}
		tools = append(tools, tool.NewSessionHistoryTool(f.opts.Memory))
	}

	var (
		clause string
		rcfg   *retrieval.Config
	)

	if desc.retrievalEnabled() {
		if f.opts.VectorStore == nil {
			return nil, errors.New("retrieval enabled but no vector store configured")
		}

		cfg := desc.Retrieval.WithDefaults()
		rcfg = &cfg
		clause = retrieval.PromptClause
		tools = append(tools, retrieval.NewSearchTool(f.opts.VectorStore, cfg))
	}

	envelopes := make(map[string]*tool.Envelope, len(tools))
	defs := make([]model.ToolDefinition, 0, len(tools))

	for _, t := range tools {
		if t == nil {
			return nil, errors.New("nil tool")
		}

		env, ok := t.(*tool.Envelope)
		if !ok {
			env = tool.NewEnvelope(t, func(o *tool.EnvelopeOptions) { *o = f.opts.Envelope })
		}

		if _, dup := envelopes[env.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool %q", env.Name())
		}

		envelopes[env.Name()] = env
		defs = append(defs, model.NewFunctionTool(env.Name(), env.Description(), env.Parameters()))
	}

	instruction := desc.Instruction
	if instruction.IsZero() {
		text := desc.SystemPrompt
		if text == "" {
			text = fmt.Sprintf("You are %s, a helpful AI assistant.", desc.Name)
		}
		instruction = NewInstructionFromText(text)
	}

	maxIter := desc.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var store core.HistoryStore
	if desc.UseMemory {
		store = f.opts.Memory
	}

	return &Agent{
		desc:      desc,
		model:     m,
		prompt:    NewPrompt(instruction, clause, desc.UseMemory, rcfg != nil),
		tools:     envelopes,
		toolDefs:  defs,
		memory:    store,
		store:     f.opts.VectorStore,
		retrieval: rcfg,
		executor: &toolExecutor{
			agent:       desc.Name,
			tools:       envelopes,
			maxParallel: f.opts.MaxParallelTools,
			logger:      f.opts.Logger,
		},
		maxIterations: maxIter,
		logger:        f.opts.Logger,
	}, nil
}
