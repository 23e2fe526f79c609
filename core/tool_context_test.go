package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolContext_Accessors(t *testing.T) {
	ctx := WithAgentName(WithSessionID(context.Background(), "s1"), "researcher")

	var got []int
	tc := NewToolContext(ctx, "search", func(o *ToolContextOptions) {
		o.ExecutionID = "search_1_abc"
		o.Progress = func(p int, _ string) { got = append(got, p) }
	})

	assert.Equal(t, "search", tc.ToolName())
	assert.Equal(t, "search_1_abc", tc.ExecutionID())
	assert.Equal(t, "s1", tc.SessionID())
	assert.Equal(t, "researcher", tc.AgentName())
	assert.False(t, tc.Cancelled())
	assert.NotNil(t, tc.Logger())

	tc.ReportProgress(10, "")
	tc.ReportProgress(60, "")
	assert.Equal(t, []int{10, 60}, got)
}

func TestToolContext_CancelledAndNilSafe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tc := NewToolContext(ctx, "slow")
	cancel()
	assert.True(t, tc.Cancelled())

	//nolint:staticcheck // nil context is normalised
	bare := NewToolContext(nil, "bare")
	assert.False(t, bare.Cancelled())
	bare.ReportProgress(50, "ignored")
	assert.Equal(t, "", bare.SessionID())
}
