package tool

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/memory"
)

func sessionToolContext(sessionID string) *core.ToolContext {
	return core.NewToolContext(core.WithSessionID(context.Background(), sessionID), SessionHistoryToolName)
}

func seededStore(t *testing.T) *memory.InMemoryStore {
	t.Helper()

	ctx := context.Background()
	store := memory.NewInMemoryStore()
	require.NoError(t, store.AppendHuman(ctx, "s1", "book a table for two"))
	require.NoError(t, store.AppendAI(ctx, "s1", "Booked a table for two at 7pm."))
	require.NoError(t, store.AppendHuman(ctx, "s1", "and a taxi"))
	require.NoError(t, store.AppendHuman(ctx, "s2", "unrelated table talk"))
	return store
}

func TestSessionHistoryTool_GetHistory(t *testing.T) {
	h := NewSessionHistoryTool(seededStore(t))

	out, err := h.Call(sessionToolContext("s1"), map[string]any{"operation": "get_history", "limit": float64(2)})
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, "s1", res["session_id"])
	assert.Equal(t, 2, res["count"])

	msgs := res["messages"].([]map[string]any)
	assert.Equal(t, "ai", msgs[0]["role"])
	assert.Equal(t, "and a taxi", msgs[1]["content"])
}

func TestSessionHistoryTool_SearchStaysInSession(t *testing.T) {
	h := NewSessionHistoryTool(seededStore(t))

	out, err := h.Call(sessionToolContext("s1"), map[string]any{"operation": "search_history", "query": "TABLE"})
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, 2, res["count"])
	for _, m := range res["messages"].([]map[string]any) {
		assert.NotContains(t, m["content"], "unrelated")
	}

	_, err = h.Call(sessionToolContext("s1"), map[string]any{"operation": "search_history"})
	assert.Error(t, err)
}

func TestSessionHistoryTool_ClearOnlyCurrentSession(t *testing.T) {
	store := seededStore(t)
	h := NewSessionHistoryTool(store)
	ctx := context.Background()

	_, err := h.Call(sessionToolContext("s1"), map[string]any{"operation": "clear_history"})
	require.NoError(t, err)

	s1, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, s1)

	s2, err := store.Messages(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, s2, 1)
}

func TestSessionHistoryTool_Errors(t *testing.T) {
	h := NewSessionHistoryTool(memory.NewInMemoryStore())

	_, err := h.Call(newTestToolContext(SessionHistoryToolName), map[string]any{"operation": "get_history"})
	assert.Error(t, err, "no session")

	_, err = h.Call(sessionToolContext("s1"), map[string]any{})
	assert.Error(t, err, "missing operation")

	_, err = h.Call(sessionToolContext("s1"), map[string]any{"operation": "set_state"})
	assert.EqualError(t, err, "unknown operation: set_state")
}

func TestSessionHistoryTool_TruncatesLongMessages(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.AppendHuman(context.Background(), "s1", strings.Repeat("x", 150)))

	out, err := NewSessionHistoryTool(store).Call(sessionToolContext("s1"), map[string]any{"operation": "get_history"})
	require.NoError(t, err)

	msgs := out.(map[string]any)["messages"].([]map[string]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, strings.Repeat("x", 100)+"...", msgs[0]["content"])
}

func TestSessionHistoryTool_DefaultLimit(t *testing.T) {
	store := memory.NewInMemoryStore()
	for i := 0; i < 15; i++ {
		require.NoError(t, store.AppendHuman(context.Background(), "s1", fmt.Sprintf("msg %d", i)))
	}

	out, err := NewSessionHistoryTool(store).Call(sessionToolContext("s1"), map[string]any{"operation": "get_history"})
	require.NoError(t, err)

	msgs := out.(map[string]any)["messages"].([]map[string]any)
	require.Len(t, msgs, 10)
	assert.Equal(t, "msg 5", msgs[0]["content"])
}
