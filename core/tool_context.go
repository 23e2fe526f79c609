package core

import (
	"context"

	"github.com/hupe1980/toolmesh/logging"
)

// ProgressFunc receives progress reports from a running tool body.
type ProgressFunc func(percent int, message string)

// ToolContextOptions configures a ToolContext.
type ToolContextOptions struct {
	ExecutionID string
	Logger      logging.Logger
	Progress    ProgressFunc
}

// ToolContext is the surface a tool body sees while it runs. Its Context is
// cancelled when the execution is cancelled or times out; long running tools
// are expected to observe it. The envelope cannot preempt a body that ignores
// cancellation, it only stops waiting for it.
type ToolContext struct {
	ctx         context.Context
	toolName    string
	executionID string
	progress    ProgressFunc

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to ctx.
func NewToolContext(ctx context.Context, toolName string, optFns ...func(o *ToolContextOptions)) *ToolContext {
	opts := ToolContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return &ToolContext{
		ctx:           ctx,
		toolName:      toolName,
		executionID:   opts.ExecutionID,
		progress:      opts.Progress,
		loggerAdapter: newLoggerAdapter(opts.Logger),
	}
}

// Context returns the execution scoped context.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// ToolName returns the name of the executing tool.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// ExecutionID returns the identifier of this execution (empty outside an envelope).
func (tc *ToolContext) ExecutionID() string { return tc.executionID }

// SessionID returns the session the execution belongs to, if any.
func (tc *ToolContext) SessionID() string { return SessionIDFromContext(tc.ctx) }

// AgentName returns the agent that issued the call, if any.
func (tc *ToolContext) AgentName() string { return AgentNameFromContext(tc.ctx) }

// Cancelled reports whether the execution has been cancelled or timed out.
func (tc *ToolContext) Cancelled() bool { return tc.ctx.Err() != nil }

// ReportProgress forwards a progress report (0-100) to the envelope. It is a
// no-op when the tool runs without streaming.
func (tc *ToolContext) ReportProgress(percent int, message string) {
	if tc.progress != nil {
		tc.progress(percent, message)
	}
}

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	agentNameKey
	runKey
)

// WithSessionID annotates ctx with the session identifier.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext returns the session identifier stored in ctx.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithAgentName annotates ctx with the name of the calling agent.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey, name)
}

// AgentNameFromContext returns the agent name stored in ctx.
func AgentNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(agentNameKey).(string); ok {
		return v
	}
	return ""
}
