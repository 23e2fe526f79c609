// Package coordinator routes user messages to registered agents. Every agent
// is exposed to a top-level executor as a delegation tool named
// ask_<agent name in snake_case>; the executor decides which agents to ask
// and composes the reply.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/agent"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/memory"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/telemetry"
	"github.com/hupe1980/toolmesh/tool"
)

// Name is the agent name of the top-level executor.
const Name = "Coordinator"

// DefaultStartupDelay is the grace period before the deferred initialization
// snapshots the agent registry.
const DefaultStartupDelay = 2 * time.Second

// DefaultSystemPrompt instructs the top-level executor.
const DefaultSystemPrompt = "You are a coordinator that routes user requests to specialized agents. " +
	"Delegate sub-tasks with the ask_* tools and combine their answers into one helpful response. " +
	"Answer directly when no agent is needed."

// Options configures a Coordinator.
type Options struct {
	SystemPrompt string
	Provider     model.Provider
	UseMemory    bool
	StartupDelay time.Duration
	// Streaming enables token streaming for every message; OnToken receives
	// the tokens unless a message supplies its own callback.
	Streaming     bool
	OnToken       func(token string)
	MaxIterations int
	Logger        logging.Logger
}

// Coordinator owns the lazily built top-level executor.
type Coordinator struct {
	registry *agent.Registry
	factory  *agent.Factory
	opts     Options
	logger   logging.Logger

	mu       sync.Mutex
	executor *agent.Agent
	agents   []string
	timer    *time.Timer
}

// New creates a Coordinator over registry. The executor is built with
// factory on first use or after Start's delay, whichever comes first.
func New(registry *agent.Registry, factory *agent.Factory, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		SystemPrompt: DefaultSystemPrompt,
		StartupDelay: DefaultStartupDelay,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Coordinator{
		registry: registry,
		factory:  factory,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// DelegationToolName derives the tool name that delegates to agentName.
func DelegationToolName(agentName string) string {
	return "ask_" + util.SnakeCase(agentName)
}

// Start schedules initialization after the startup delay so that agents
// registered during startup are part of the snapshot. A failed deferred
// initialization is logged; ProcessMessage retries it.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil || c.executor != nil {
		return
	}

	c.logger.Info("coordinator.init.deferred", "delay_ms", c.opts.StartupDelay.Milliseconds())

	c.timer = time.AfterFunc(c.opts.StartupDelay, func() {
		if err := c.Init(ctx); err != nil {
			c.logger.Warn("coordinator.init.deferred_failed", "error", err.Error())
		}
	})
}

// Stop cancels a pending deferred initialization.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Init builds the executor now if it does not exist yet.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.executor != nil {
		return nil
	}

	return c.initLocked(ctx)
}

// Refresh rebuilds the executor from the current registry contents.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.initLocked(ctx)
}

// Ready reports whether the executor has been built.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.executor != nil
}

// Agents returns the agent names captured by the last initialization.
func (c *Coordinator) Agents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.agents...)
}

func (c *Coordinator) initLocked(ctx context.Context) error {
	_, span := telemetry.StartSpan(ctx, "coordinator.init")
	defer span.End()

	agents := c.registry.List()
	if len(agents) == 0 {
		err := &core.CoordinatorInitializationError{Err: core.ErrNoAgents}
		telemetry.RecordError(span, err)
		c.logger.Warn("coordinator.init.no_agents")
		return err
	}

	tools := make([]tool.Tool, 0, len(agents))
	names := make([]string, 0, len(agents))

	for _, a := range agents {
		tools = append(tools, delegationTool(a, c.logger))
		names = append(names, a.Name())
	}

	exec, err := c.factory.Build(agent.Descriptor{
		Name:          Name,
		Description:   "Routes requests to specialized agents",
		SystemPrompt:  c.systemPrompt(agents),
		Provider:      c.opts.Provider,
		UseMemory:     c.opts.UseMemory,
		Tools:         tools,
		MaxIterations: c.opts.MaxIterations,
	})
	if err != nil {
		err = &core.CoordinatorInitializationError{Err: err}
		telemetry.RecordError(span, err)
		return err
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.executor = exec
	c.agents = names

	telemetry.SetOK(span)
	c.logger.Info("coordinator.init.done", "agents", strings.Join(names, ","))

	return nil
}

func (c *Coordinator) systemPrompt(agents []*agent.Agent) string {
	var b strings.Builder

	b.WriteString(c.opts.SystemPrompt)
	b.WriteString("\n\nAvailable agents:")

	for _, a := range agents {
		fmt.Fprintf(&b, "\n- %s (%s)", a.Name(), DelegationToolName(a.Name()))
		if d := a.Description(); d != "" {
			b.WriteString(": ")
			b.WriteString(d)
		}
	}

	return b.String()
}

// ensure returns the executor, initializing it on demand.
func (c *Coordinator) ensure(ctx context.Context) (*agent.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.executor == nil {
		c.logger.Info("coordinator.init.on_demand")

		if err := c.initLocked(ctx); err != nil {
			return nil, err
		}
	}

	return c.executor, nil
}

// MessageOption customizes one ProcessMessage call.
type MessageOption func(o *messageOptions)

type messageOptions struct {
	sessionID string
	onToken   func(string)
}

// WithStreaming streams the reply token by token to onToken.
func WithStreaming(onToken func(token string)) MessageOption {
	return func(o *messageOptions) { o.onToken = onToken }
}

// WithSession selects the session whose memory the turn reads and extends.
func WithSession(sessionID string) MessageOption {
	return func(o *messageOptions) { o.sessionID = sessionID }
}

// ProcessMessage runs one user turn through the top-level executor and
// returns the reply. With memory enabled the exchange is appended to the
// session history once the reply is complete, for streamed replies too.
//
// A coordinator without agents returns *core.CoordinatorInitializationError
// and stays uninitialized so that a later call can retry.
func (c *Coordinator) ProcessMessage(ctx context.Context, text string, optFns ...MessageOption) (string, error) {
	exec, err := c.ensure(ctx)
	if err != nil {
		return "", err
	}

	opts := messageOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.onToken == nil && c.opts.Streaming {
		opts.onToken = c.opts.OnToken
	}

	sessionID := memory.SessionID(opts.sessionID)

	ctx, span := telemetry.StartSpan(ctx, "coordinator.process_message",
		telemetry.String("session.id", sessionID),
		telemetry.Int64("input.length", int64(len(text))),
	)
	defer span.End()

	in := agent.Input{Text: text, SessionID: sessionID}

	var streamed strings.Builder
	if opts.onToken != nil {
		onToken := opts.onToken
		in.OnToken = func(token string) {
			streamed.WriteString(token)
			onToken(token)
		}
	}

	start := time.Now()

	out, err := exec.Invoke(ctx, in)
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Error("coordinator.message.failed", "session", sessionID, "error", err.Error())
		return "", fmt.Errorf("process message: %w", err)
	}

	reply := out.Text
	if reply == "" {
		reply = streamed.String()
	}

	telemetry.SetOK(span)
	c.logger.Info(
		"coordinator.message.done",
		"session", sessionID,
		"streaming", opts.onToken != nil,
		"iterations", out.Iterations,
		"tool_calls", out.ToolCalls,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return reply, nil
}
