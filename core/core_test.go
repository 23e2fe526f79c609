package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	invalid := fmt.Errorf("wrapped: %w", &InvalidInputError{Tool: "echo", Err: errors.New("missing text")})
	assert.ErrorIs(t, invalid, ErrInvalidInput)
	assert.Contains(t, invalid.Error(), `invalid input for tool "echo"`)

	timedOut := &ToolTimedOutError{Tool: "slow", Duration: 50 * time.Millisecond}
	assert.ErrorIs(t, timedOut, ErrToolTimedOut)
	assert.Equal(t, int64(50), timedOut.DurationMs())
	assert.Equal(t, `tool "slow" timed out after 50ms`, timedOut.Error())

	var te *ToolTimedOutError
	require.True(t, errors.As(fmt.Errorf("outer: %w", timedOut), &te))
	assert.Equal(t, "slow", te.Tool)

	initErr := &CoordinatorInitializationError{Err: ErrNoAgents}
	assert.ErrorIs(t, initErr, ErrNoAgents)

	agentErr := &AgentInitializationError{Agent: "weather", Err: ErrUnknownProvider}
	assert.ErrorIs(t, agentErr, ErrUnknownProvider)

	delegation := &DelegationError{Agent: "math", Err: errors.New("boom")}
	assert.ErrorIs(t, delegation, ErrDelegation)
	assert.Contains(t, delegation.Error(), "boom")
}

func TestCallLimiter_BudgetPerRun(t *testing.T) {
	l := NewCallLimiter(3, nil)

	for run := 0; run < 3; run++ {
		ctx := WithRun(context.Background())
		require.NoError(t, l.Acquire(ctx), "run %d", run)
		require.NoError(t, l.Acquire(ctx), "run %d", run)
		assert.Equal(t, 1, l.Remaining(ctx))
	}

	ctx := WithRun(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.ErrorContains(t, l.Acquire(ctx), "exceeded max model calls")
	assert.ErrorContains(t, l.Acquire(ctx), "exceeded max model calls")
	assert.Equal(t, 3, CallsInRun(ctx))
	assert.Equal(t, 0, l.Remaining(ctx))

	// nested runs share the outer budget
	assert.Equal(t, ctx, WithRun(ctx))

	// calls outside a run are not budgeted
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	unlimited := NewCallLimiter(0, nil)
	assert.Equal(t, -1, unlimited.Remaining(ctx))
}

func TestCallLimiter_RateLimitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	require.NotNil(t, rl)
	l := NewCallLimiter(0, rl)

	require.NoError(t, l.Acquire(context.Background())) // consumes the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(ctx))

	budgeted := NewCallLimiter(5, NewRateLimiter(0.001, 1))
	require.NoError(t, budgeted.Acquire(WithRun(context.Background())))

	run := WithRun(context.Background())
	waitCtx, waitCancel := context.WithTimeout(run, 20*time.Millisecond)
	defer waitCancel()
	assert.Error(t, budgeted.Acquire(waitCtx))
	assert.Equal(t, 0, CallsInRun(run))

	assert.Nil(t, NewRateLimiter(0, 5))
}

func TestContentHelpers(t *testing.T) {
	c := Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "hello "},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "echo", Arguments: `{"text":"hi"}`}},
		TextPart{Text: "world"},
	}}
	assert.Equal(t, "hello world", c.Text())
	calls := c.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Name)

	assert.Equal(t, RoleUser, NewHumanMessage("q").ToContent().Role)
	assert.Equal(t, RoleAssistant, NewAIMessage("a").ToContent().Role)
}
