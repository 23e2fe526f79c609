package tool

import (
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// Handler is the body of a function tool.
type Handler func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function as a tool.
//
// Arguments are validated against the compiled input schema before the
// handler runs. Failures are normalised into *ToolError:
//
//	VALIDATION_ERROR -> schema / argument mismatch (wraps *core.InvalidInputError)
//	EXECUTION_ERROR  -> the handler returned an error (wraps *core.ToolExecutionError)
//
// A *ToolError returned by the handler is forwarded unchanged. A FunctionTool
// holds no mutable state and is safe for concurrent use.
type FunctionTool struct {
	desc       Descriptor
	schema     *jsonschema.Schema
	compileErr error
	fn         Handler
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
//
// An uncompilable schema does not panic; every call then fails with a
// VALIDATION_ERROR. Use NewFunctionToolFromDescriptor to see the error upfront.
func NewFunctionTool(name, description string, parameters map[string]any, fn Handler) *FunctionTool {
	t, err := NewFunctionToolFromDescriptor(Descriptor{
		Name:        name,
		Description: description,
		InputSchema: parameters,
	}, fn)
	if err != nil {
		t.compileErr = err
	}

	return t
}

// NewFunctionToolFromDescriptor builds a tool from a full descriptor and
// reports schema compilation errors. The returned tool is non-nil even on
// error.
func NewFunctionToolFromDescriptor(desc Descriptor, fn Handler) (*FunctionTool, error) {
	t := &FunctionTool{desc: desc, fn: fn}

	schema, err := util.CompileSchema(desc.Name, desc.InputSchema)
	if err != nil {
		return t, err
	}

	t.schema = schema

	return t, nil
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Handler) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.desc.Name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.desc.Description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.desc.InputSchema }

// Descriptor returns the full descriptor including overrides.
func (t *FunctionTool) Descriptor() Descriptor { return t.desc }

// Call validates args then invokes the handler.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()
	name := t.desc.Name

	logger.Debug("tool.call.start", "tool", name, "execution_id", toolCtx.ExecutionID())

	if err := t.validate(args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", name, "error", err.Error())

		return nil, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     &core.InvalidInputError{Tool: name, Err: err},
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", name, "error", err.Error())

		return nil, &ToolError{
			Tool:    name,
			Message: err.Error(),
			Code:    CodeExecution,
			Err:     &core.ToolExecutionError{Tool: name, Err: err},
		}
	}

	logger.Debug("tool.call.success", "tool", name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (t *FunctionTool) validate(args map[string]any) error {
	if t.compileErr != nil {
		return fmt.Errorf("input schema is invalid: %w", t.compileErr)
	}

	return util.ValidateArgs(t.schema, args)
}
