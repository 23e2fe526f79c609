package tool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
)

var echoSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{"type": "string"},
	},
	"required": []string{"text"},
}

func echoHandler(_ *core.ToolContext, args map[string]any) (any, error) {
	return args["text"], nil
}

func newTestToolContext(name string) *core.ToolContext {
	return core.NewToolContext(nil, name)
}

func TestFunctionTool_Success(t *testing.T) {
	echo := NewFunctionTool("echo", "Echo text", echoSchema, echoHandler)

	res, err := echo.Call(newTestToolContext("echo"), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res)
	assert.Equal(t, "echo", echo.Name())
	assert.Equal(t, "Echo text", echo.Description())
}

func TestFunctionTool_ValidationError(t *testing.T) {
	called := false
	echo := NewFunctionTool("echo", "Echo text", echoSchema, func(tc *core.ToolContext, args map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	_, err := echo.Call(newTestToolContext("echo"), map[string]any{"text": 42})
	require.Error(t, err)
	assert.False(t, called)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := NewFunctionTool("boom", "Always fails", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("fail")
	})

	_, err := boom.Call(newTestToolContext("boom"), nil)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeExecution, te.Code)
	assert.Equal(t, "fail", te.Message)
	assert.ErrorIs(t, err, core.ErrToolExecution)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "quota exceeded", "RATE_LIMITED")
	tl := NewFunctionTool("quota", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, custom
	})

	_, err := tl.Call(newTestToolContext("quota"), nil)
	assert.Same(t, custom, err)
}

func TestFunctionTool_InvalidSchema(t *testing.T) {
	_, err := NewFunctionToolFromDescriptor(Descriptor{
		Name:        "bad",
		InputSchema: map[string]any{"type": 42},
	}, echoHandler)
	require.Error(t, err)

	lazy := NewFunctionTool("bad", "", map[string]any{"type": 42}, echoHandler)
	_, err = lazy.Call(newTestToolContext("bad"), map[string]any{})

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type sumArgs struct {
		A float64 `json:"a" description:"First addend"`
		B float64 `json:"b" description:"Second addend"`
	}

	sum := NewFunctionToolFromStruct("sum", "Add numbers", sumArgs{}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	res, err := sum.Call(newTestToolContext("sum"), map[string]any{"a": 1.5, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.5, res)

	_, err = sum.Call(newTestToolContext("sum"), map[string]any{"a": 1.0})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestDescriptorOf(t *testing.T) {
	streaming := true
	ft, err := NewFunctionToolFromDescriptor(Descriptor{Name: "x", Streaming: &streaming}, echoHandler)
	require.NoError(t, err)

	d := DescriptorOf(ft)
	require.NotNil(t, d.Streaming)
	assert.True(t, *d.Streaming)

	d = DescriptorOf(plainTool{})
	assert.Equal(t, "plain", d.Name)
	assert.Nil(t, d.Streaming)
}

type plainTool struct{}

func (plainTool) Name() string               { return "plain" }
func (plainTool) Description() string        { return "plain tool" }
func (plainTool) Parameters() map[string]any { return nil }
func (plainTool) Call(*core.ToolContext, map[string]any) (any, error) {
	return "ok", nil
}

func TestRegistry_RegisterSkipsBadDefinitions(t *testing.T) {
	r := NewRegistry()

	tools := r.Register(ProviderFunc(func() []Definition {
		return []Definition{
			{Descriptor: Descriptor{Name: "echo", Description: "Echo", InputSchema: echoSchema}, Handler: echoHandler},
			{Descriptor: Descriptor{Name: "", Description: "nameless"}, Handler: echoHandler},
			{Descriptor: Descriptor{Name: "broken", InputSchema: map[string]any{"type": 42}}, Handler: echoHandler},
			{Descriptor: Descriptor{Name: "nohandler"}},
			{Descriptor: Descriptor{Name: "echo", Description: "dup"}, Handler: echoHandler},
			{Descriptor: Descriptor{Name: "clock"}, Handler: func(*core.ToolContext, map[string]any) (any, error) { return "noon", nil }},
		}
	}))

	require.Len(t, tools, 2)
	assert.Equal(t, []string{"echo", "clock"}, r.Names())
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "Echo", got.Description())

	_, ok = r.Get("broken")
	assert.False(t, ok)
}

func TestRegistry_ProviderPanic(t *testing.T) {
	r := NewRegistry()

	tools := r.Register(ProviderFunc(func() []Definition { panic("boom") }))
	assert.Empty(t, tools)
	assert.Zero(t, r.Len())
}

func TestRegistry_RegisterToolDuplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterTool(plainTool{}))
	err := r.RegisterTool(plainTool{})
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.Register(ProviderFunc(func() []Definition {
		return []Definition{
			{Descriptor: Descriptor{Name: "a"}, Handler: echoHandler},
			{Descriptor: Descriptor{Name: "b"}, Handler: echoHandler},
		}
	}))

	got := r.Lookup("b", "missing", "a")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name())
	assert.Equal(t, "a", got[1].Name())
}
