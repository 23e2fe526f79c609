package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/model"
)

func TestModel_NonStreamingToolUse(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "weather", "input": {"city": "Paris"}}
			],
			"stop_reason": "tool_use",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	t.Cleanup(srv.Close)

	m, err := FromProvider(model.Provider{Kind: model.KindAnthropic, Name: "claude-3-5-sonnet-20241022", APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	resp, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{
			core.NewTextContent(core.RoleSystem, "You are a weather agent."),
			core.NewTextContent(core.RoleUser, "Weather in Paris?"),
		},
		Tools: []model.ToolDefinition{model.NewFunctionTool("weather", "Get weather", map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []string{"city"},
		})},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Content.Text())
	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].ID)
	assert.Equal(t, "weather", calls[0].Name)
	assert.JSONEq(t, `{"city":"Paris"}`, calls[0].Arguments)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	system, _ := body["system"].([]any)
	assert.Len(t, system, 1)
	tools, _ := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "Get weather", tools[0].(map[string]any)["description"])
}

func TestBuildMessages_ToolResultsFollowAssistantTurn(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })

	msgs := m.buildMessages([]core.Content{
		core.NewTextContent(core.RoleSystem, "sys"),
		core.NewTextContent(core.RoleUser, "weather?"),
		{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "t1", Name: "weather", Arguments: `{"city":"Paris"}`}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "t1", Name: "weather", Response: "sunny"}}}},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	require.Len(t, msgs[2].Content, 1)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "t1", msgs[2].Content[0].OfToolResult.ToolUseID)
}
