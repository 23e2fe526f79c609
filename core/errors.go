package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors usable with errors.Is against the typed errors below.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrToolExecution      = errors.New("tool execution failed")
	ErrToolTimedOut       = errors.New("tool timed out")
	ErrNoAgents           = errors.New("no agents registered")
	ErrUnknownProvider    = errors.New("unknown model provider")
	ErrMissingCustomModel = errors.New("custom provider requires a prebuilt model")
	ErrDelegation         = errors.New("delegation failed")
)

// InvalidInputError reports a tool input that failed schema validation.
// It is recovered by the execution envelope and surfaced as result text.
type InvalidInputError struct {
	Tool string
	Err  error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for tool %q: %v", e.Tool, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// ToolExecutionError reports a failure raised by a tool body.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }

// ToolTimedOutError is raised by the timeout manager when the deadline of a
// tool execution elapses before its body settles. It never leaves the
// execution envelope.
type ToolTimedOutError struct {
	Tool     string
	Duration time.Duration
}

func (e *ToolTimedOutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %dms", e.Tool, e.DurationMs())
}

// DurationMs returns the configured deadline in milliseconds.
func (e *ToolTimedOutError) DurationMs() int64 { return e.Duration.Milliseconds() }

func (e *ToolTimedOutError) Is(target error) bool { return target == ErrToolTimedOut }

// AgentInitializationError reports that one agent could not be built.
// Other agents and the coordinator are unaffected.
type AgentInitializationError struct {
	Agent string
	Err   error
}

func (e *AgentInitializationError) Error() string {
	return fmt.Sprintf("initialize agent %q: %v", e.Agent, e.Err)
}

func (e *AgentInitializationError) Unwrap() error { return e.Err }

// CoordinatorInitializationError reports that the coordinator could not be
// initialized, typically because no agents are registered.
type CoordinatorInitializationError struct {
	Err error
}

func (e *CoordinatorInitializationError) Error() string {
	return fmt.Sprintf("initialize coordinator: %v", e.Err)
}

func (e *CoordinatorInitializationError) Unwrap() error { return e.Err }

// DelegationError reports a sub-agent failure observed by the coordinator.
type DelegationError struct {
	Agent string
	Err   error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("agent %q failed to process the task: %v", e.Agent, e.Err)
}

func (e *DelegationError) Unwrap() error { return e.Err }

func (e *DelegationError) Is(target error) bool { return target == ErrDelegation }
