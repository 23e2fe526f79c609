package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/stream"
	"github.com/hupe1980/toolmesh/telemetry"
	"github.com/hupe1980/toolmesh/timeout"
)

// State is the lifecycle state of one tool execution.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends an execution.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Execution records one run of a tool through an envelope.
type Execution struct {
	ID       string
	ToolName string
	Output   string
	Err      error
	Started  time.Time
	Finished time.Time

	mu       sync.Mutex
	state    State
	history  []State
	progress int
}

func newExecution(id, toolName string) *Execution {
	return &Execution{
		ID:       id,
		ToolName: toolName,
		state:    StateIdle,
		history:  []State{StateIdle},
	}
}

// State returns the current state.
func (e *Execution) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// History returns every state the execution passed through.
func (e *Execution) History() []State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]State(nil), e.history...)
}

// Duration returns the wall time between start and finish.
func (e *Execution) Duration() time.Duration {
	if e.Finished.IsZero() {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// transition moves to s unless the execution is already terminal.
func (e *Execution) transition(s State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Terminal() {
		return false
	}

	e.state = s
	e.history = append(e.history, s)

	return true
}

// advance accepts a progress value while running. Values are clamped to
// 0-100 and never decrease.
func (e *Execution) advance(percent int) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return 0, false
	}

	percent = min(max(percent, 0), 100)
	if percent < e.progress {
		percent = e.progress
	}
	e.progress = percent

	return percent, true
}

// EnvelopeOptions configures an Envelope.
type EnvelopeOptions struct {
	// Streaming is the global tool streaming flag; a descriptor override wins.
	Streaming   bool
	Multiplexer *stream.Multiplexer
	Timeouts    *timeout.Manager
	Logger      logging.Logger
}

// Envelope wraps a tool with the per-invocation lifecycle: state tracking,
// timeout enforcement, cancellation tokens and streaming updates. Execute
// never returns an error; failures become result text so the calling model
// can react to them.
//
// An Envelope is itself a Tool and can be handed to an agent in place of the
// tool it wraps.
type Envelope struct {
	tool   Tool
	desc   Descriptor
	opts   EnvelopeOptions
	logger logging.Logger
}

// NewEnvelope wraps t.
func NewEnvelope(t Tool, optFns ...func(o *EnvelopeOptions)) *Envelope {
	opts := EnvelopeOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Envelope{
		tool:   t,
		desc:   DescriptorOf(t),
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// WrapAll wraps every tool with the same options.
func WrapAll(tools []Tool, optFns ...func(o *EnvelopeOptions)) []*Envelope {
	out := make([]*Envelope, 0, len(tools))
	for _, t := range tools {
		out = append(out, NewEnvelope(t, optFns...))
	}
	return out
}

// Name implements Tool.
func (e *Envelope) Name() string { return e.desc.Name }

// Description implements Tool.
func (e *Envelope) Description() string { return e.desc.Description }

// Parameters implements Tool.
func (e *Envelope) Parameters() map[string]any { return e.desc.InputSchema }

// Descriptor implements Describer.
func (e *Envelope) Descriptor() Descriptor { return e.desc }

// Unwrap returns the wrapped tool.
func (e *Envelope) Unwrap() Tool { return e.tool }

// Call implements Tool by running Execute on the context of toolCtx. The
// returned error is always nil.
func (e *Envelope) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	return e.Execute(toolCtx.Context(), args), nil
}

// Streaming reports whether executions of this tool publish updates.
func (e *Envelope) Streaming() bool {
	if e.opts.Multiplexer == nil {
		return false
	}
	if e.desc.Streaming != nil {
		return *e.desc.Streaming
	}
	return e.opts.Streaming
}

// Execute runs the tool and returns its result as text.
func (e *Envelope) Execute(ctx context.Context, args map[string]any) string {
	return e.Run(ctx, args).Output
}

// ExecuteJSON decodes raw as the argument object and runs the tool. Invalid
// JSON is reported as result text like any other invalid input.
func (e *Envelope) ExecuteJSON(ctx context.Context, raw string) string {
	args := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			invalid := &core.InvalidInputError{Tool: e.desc.Name, Err: err}
			e.logger.Warn("tool.call.invalid_json", "tool", e.desc.Name, "error", err.Error())
			return "Error: " + invalid.Error()
		}
	}

	return e.Execute(ctx, args)
}

// Run executes the tool and returns the full execution record.
func (e *Envelope) Run(ctx context.Context, args map[string]any) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}

	name := e.desc.Name
	streaming := e.Streaming()

	policy := timeout.Policy{}
	runCtx := ctx

	var token *timeout.Token

	if e.opts.Timeouts != nil {
		policy = e.opts.Timeouts.ResolvePolicy(e.desc.Timeout)
		token = e.opts.Timeouts.CreateToken(ctx, name)
		runCtx = token.Context()

		defer e.opts.Timeouts.Release(token.ID())
	}

	id := timeout.NewExecutionID(name)
	if token != nil {
		id = token.ID()
	}

	exec := newExecution(id, name)
	exec.Started = time.Now()

	runCtx, span := telemetry.StartSpan(runCtx, "tool.execute",
		telemetry.String("tool.name", name),
		telemetry.String("tool.execution_id", id),
	)
	defer span.End()

	exec.transition(StateStarting)

	if streaming {
		e.publish(stream.Update{Kind: stream.KindStart, ExecutionID: id, Content: encodeArgs(args)})
	}

	exec.transition(StateRunning)

	body := func(bodyCtx context.Context) (any, error) {
		tc := core.NewToolContext(bodyCtx, name, func(o *core.ToolContextOptions) {
			o.ExecutionID = id
			o.Logger = e.opts.Logger
			o.Progress = e.progressFunc(exec, streaming)
		})
		return e.tool.Call(tc, args)
	}

	var (
		result any
		err    error
	)

	if e.opts.Timeouts != nil {
		d := time.Duration(0)
		if policy.Active() {
			d = policy.Duration
		}
		result, err = e.opts.Timeouts.RunWithTimeout(runCtx, name, d, body)
	} else {
		result, err = callSafely(runCtx, body)
	}

	exec.Finished = time.Now()
	dur := exec.Duration()

	var timedOut *core.ToolTimedOutError

	switch {
	case err == nil:
		exec.Output = Stringify(result)
		exec.transition(StateCompleted)

		telemetry.SetOK(span)
		logging.LogToolCall(e.logger, name, id, "completed", dur, nil)

		if streaming {
			e.publish(stream.Update{Kind: stream.KindComplete, ExecutionID: id, Content: exec.Output, Result: exec.Output, Progress: 100})
		}
	case errors.As(err, &timedOut):
		if token != nil {
			token.Cancel()
		}

		exec.Err = err
		exec.Output = TimeoutMessage(name, timedOut.Duration)
		exec.transition(StateTimedOut)

		telemetry.RecordError(span, err)
		logging.LogToolCall(e.logger, name, id, "timed_out", dur, err)

		if streaming {
			e.publish(stream.Update{Kind: stream.KindTimeout, ExecutionID: id, Content: exec.Output, Error: exec.Output})
		}

		e.opts.Timeouts.NotifyTimeout(name, timedOut.Duration)
	default:
		msg := errorMessage(err)
		if errors.Is(err, context.Canceled) {
			msg = "execution cancelled"
		}

		exec.Err = err
		exec.Output = "Error: " + msg
		exec.transition(StateFailed)

		telemetry.RecordError(span, err)
		logging.LogToolCall(e.logger, name, id, "failed", dur, err)

		if streaming {
			e.publish(stream.Update{Kind: stream.KindError, ExecutionID: id, Content: exec.Output, Error: msg})
		}
	}

	return exec
}

func (e *Envelope) progressFunc(exec *Execution, streaming bool) core.ProgressFunc {
	return func(percent int, message string) {
		p, ok := exec.advance(percent)
		if !ok {
			return
		}

		if streaming {
			e.publish(stream.Update{Kind: stream.KindProgress, ExecutionID: exec.ID, Progress: p, Content: message})
		}
	}
}

func (e *Envelope) publish(u stream.Update) {
	e.opts.Multiplexer.Publish(e.desc.Name, u)
}

// TimeoutMessage is the result text of a timed out execution.
func TimeoutMessage(toolName string, d time.Duration) string {
	return fmt.Sprintf("Tool %q timed out after %dms", toolName, d.Milliseconds())
}

// Stringify renders a tool result for the model: strings verbatim, anything
// else as JSON.
func Stringify(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	case error:
		return r.Error()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}

func encodeArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}

	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}

	return string(b)
}

func callSafely(ctx context.Context, body func(context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return body(ctx)
}
