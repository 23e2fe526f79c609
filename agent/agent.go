package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/retrieval"
	"github.com/hupe1980/toolmesh/tool"
)

// DefaultMaxIterations bounds the reasoning loop when a descriptor sets none.
const DefaultMaxIterations = 10

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit.
var ErrMaxIterations = errors.New("agent exceeded maximum iterations")

// Descriptor is the declared configuration of an agent.
type Descriptor struct {
	// Name is unique and also derives the coordinator delegation tool name.
	Name         string
	Description  string
	SystemPrompt string
	// Instruction, when set, replaces SystemPrompt with a dynamic prompt.
	Instruction   Instruction
	Provider      model.Provider
	UseMemory     bool
	// HistoryTool gives a memory enabled agent the session_history tool.
	HistoryTool   bool
	Retrieval     *retrieval.Config
	Tools         []tool.Tool
	MaxIterations int
}

func (d Descriptor) retrievalEnabled() bool {
	return d.Retrieval != nil && d.Retrieval.Enabled
}

// Input is one request to an agent.
type Input struct {
	Text      string
	SessionID string
	// OnToken, when set, switches the model to streaming and receives every
	// text token as it arrives.
	OnToken func(token string)
}

// Output is the outcome of one Invoke.
type Output struct {
	Text       string
	Iterations int
	ToolCalls  int
	// Context is the retrieved text injected into the prompt, if any.
	Context string
}

// Agent is the executable form of a Descriptor.
type Agent struct {
	desc          Descriptor
	model         model.Model
	prompt        *Prompt
	tools         map[string]*tool.Envelope
	toolDefs      []model.ToolDefinition
	memory        core.HistoryStore
	store         core.VectorStore
	retrieval     *retrieval.Config
	executor      *toolExecutor
	maxIterations int
	logger        logging.Logger
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.desc.Name }

// Description returns the agent description.
func (a *Agent) Description() string { return a.desc.Description }

// Descriptor returns the declaration the agent was built from.
func (a *Agent) Descriptor() Descriptor { return a.desc }

// Model returns the resolved model.
func (a *Agent) Model() model.Model { return a.model }

// Prompt returns the assembled prompt template.
func (a *Agent) Prompt() *Prompt { return a.prompt }

// UsesMemory reports whether the agent reads and writes session history.
func (a *Agent) UsesMemory() bool { return a.memory != nil }

// UsesRetrieval reports whether the agent consults a vector store.
func (a *Agent) UsesRetrieval() bool { return a.retrieval != nil }

// ToolNames returns the sorted names of the tools bound to the agent.
func (a *Agent) ToolNames() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke runs one turn of the agent for in.
func (a *Agent) Invoke(ctx context.Context, in Input) (Output, error) {
	in.SessionID = memory.SessionID(in.SessionID)

	ctx = core.WithRun(ctx)
	ctx = core.WithAgentName(ctx, a.desc.Name)
	ctx = core.WithSessionID(ctx, in.SessionID)

	if a.retrieval != nil {
		return a.invokeWithRetrieval(ctx, in)
	}

	return a.execute(ctx, in, "")
}

func (a *Agent) execute(ctx context.Context, in Input, contextText string) (Output, error) {
	var (
		history *memory.SessionHistory
		vars    = PromptVars{
			Input:   in.Text,
			Context: contextText,
			Values: map[string]any{
				"agent_name": a.desc.Name,
				"session_id": in.SessionID,
				"input":      in.Text,
			},
		}
	)

	if a.memory != nil {
		h, err := memory.NewSessionHistory(ctx, a.memory, in.SessionID)
		if err != nil {
			return Output{}, fmt.Errorf("agent %s: load session history: %w", a.desc.Name, err)
		}
		history = h
		vars.History = h.Contents()
	}

	var out Output

	for out.Iterations < a.maxIterations {
		contents, err := a.prompt.Render(ctx, vars)
		if err != nil {
			return out, fmt.Errorf("agent %s: %w", a.desc.Name, err)
		}

		req := model.Request{
			Contents: contents,
			Tools:    a.toolDefs,
			Stream:   in.OnToken != nil,
		}

		start := time.Now()
		resp, err := model.Collect(ctx, a.model, req, in.OnToken)
		logging.LogLLMCall(a.logger, a.model.Info().Name, time.Since(start), err)

		out.Iterations++

		if err != nil {
			return out, fmt.Errorf("agent %s: %w", a.desc.Name, err)
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			out.Text = resp.Content.Text()

			if history != nil {
				if err := history.SaveContext(ctx, in.Text, out.Text); err != nil {
					return out, fmt.Errorf("agent %s: save session history: %w", a.desc.Name, err)
				}
			}

			return out, nil
		}

		a.logger.Debug("agent.tool_calls", "agent", a.desc.Name, "count", len(calls), "iteration", out.Iterations)

		results := a.executor.Execute(ctx, calls)
		out.ToolCalls += len(calls)

		assistant := resp.Content
		assistant.Role = core.RoleAssistant
		vars.Scratchpad = append(vars.Scratchpad, assistant, toolResultContent(results))
	}

	return out, fmt.Errorf("agent %s: %w (%d)", a.desc.Name, ErrMaxIterations, a.maxIterations)
}
