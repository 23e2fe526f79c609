// Package tool implements the tool calling subsystem: tool descriptors with
// JSON Schema validated arguments, a registry that builds tools from
// providers, and the execution envelope that adds timeouts, state tracking
// and streaming to every call.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/timeout"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are bound to agents so the model can call them. Arguments arrive as
// decoded JSON and are validated against Parameters before Call runs.
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns the JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool. toolCtx carries the cancellation context,
	// progress reporting and logging of the current execution.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Descriptor is the static description of a tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any

	// Streaming overrides the global tool streaming flag for this tool.
	Streaming *bool
	// Timeout overrides the global timeout policy for this tool.
	Timeout *timeout.Policy
}

// Describer is implemented by tools that carry per-tool streaming or
// timeout overrides.
type Describer interface {
	Descriptor() Descriptor
}

// DescriptorOf returns the descriptor of t, falling back to its Tool methods
// when t carries no overrides.
func DescriptorOf(t Tool) Descriptor {
	if d, ok := t.(Describer); ok {
		return d.Descriptor()
	}

	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Parameters(),
	}
}

// Bool returns a pointer to b, for Descriptor.Streaming.
func Bool(b bool) *bool { return &b }

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// errorMessage extracts the text shown to the model for a failed call.
func errorMessage(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Message
	}

	var ee *core.ToolExecutionError
	if errors.As(err, &ee) && ee.Err != nil {
		return ee.Err.Error()
	}

	return err.Error()
}
