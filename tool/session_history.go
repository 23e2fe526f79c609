package tool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/toolmesh/core"
)

// SessionHistoryToolName is the name agents see for the session history tool.
const SessionHistoryToolName = "session_history"

const (
	defaultHistoryLimit = 10
	historyPreviewLen   = 100
)

// SessionHistoryTool lets an agent inspect or reset the conversation it is
// running in. The session is the one carried by the ToolContext, so an agent
// can only reach its own history.
type SessionHistoryTool struct {
	store core.HistoryStore
}

// NewSessionHistoryTool creates a session history tool backed by store.
func NewSessionHistoryTool(store core.HistoryStore) *SessionHistoryTool {
	return &SessionHistoryTool{store: store}
}

// Name returns the tool identifier.
func (t *SessionHistoryTool) Name() string { return SessionHistoryToolName }

// Description returns the tool description.
func (t *SessionHistoryTool) Description() string {
	return "Reads or resets the history of the current conversation. " +
		"Supports operations: get_history, search_history, clear_history."
}

// Parameters returns the JSON schema for tool parameters.
func (t *SessionHistoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_history", "search_history", "clear_history"},
				"description": "The history operation to perform",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Text to look for with search_history",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of messages to return (default: 10)",
				"default":     defaultHistoryLimit,
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface.
func (t *SessionHistoryTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	sessionID := toolCtx.SessionID()
	if sessionID == "" {
		return nil, errors.New("no session in the current context")
	}

	operation, _ := args["operation"].(string)

	switch operation {
	case "get_history":
		return t.handleGetHistory(toolCtx, sessionID, args)
	case "search_history":
		return t.handleSearchHistory(toolCtx, sessionID, args)
	case "clear_history":
		return t.handleClearHistory(toolCtx, sessionID)
	case "":
		return nil, errors.New("operation parameter is required")
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func (t *SessionHistoryTool) handleGetHistory(toolCtx *core.ToolContext, sessionID string, args map[string]any) (any, error) {
	msgs, err := t.store.Messages(toolCtx.Context(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	msgs = lastN(msgs, historyLimit(args))

	return map[string]any{
		"session_id": sessionID,
		"messages":   summarize(msgs),
		"count":      len(msgs),
	}, nil
}

func (t *SessionHistoryTool) handleSearchHistory(toolCtx *core.ToolContext, sessionID string, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query parameter is required for search_history operation")
	}

	msgs, err := t.store.Messages(toolCtx.Context(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	needle := strings.ToLower(query)

	var matches []core.Message
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			matches = append(matches, m)
		}
	}

	matches = lastN(matches, historyLimit(args))

	return map[string]any{
		"session_id": sessionID,
		"query":      query,
		"messages":   summarize(matches),
		"count":      len(matches),
	}, nil
}

func (t *SessionHistoryTool) handleClearHistory(toolCtx *core.ToolContext, sessionID string) (any, error) {
	if err := t.store.Clear(toolCtx.Context(), sessionID); err != nil {
		return nil, fmt.Errorf("failed to clear session history: %w", err)
	}

	toolCtx.LogInfo("tool.session_history.cleared", "session_id", sessionID)

	return map[string]any{
		"session_id": sessionID,
		"success":    true,
		"message":    "Session history cleared",
	}, nil
}

// historyLimit reads the optional limit argument. JSON numbers decode as
// float64.
func historyLimit(args map[string]any) int {
	switch l := args["limit"].(type) {
	case float64:
		if l > 0 {
			return int(l)
		}
	case int:
		if l > 0 {
			return l
		}
	}
	return defaultHistoryLimit
}

func lastN(msgs []core.Message, n int) []core.Message {
	if len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}

func summarize(msgs []core.Message) []map[string]any {
	out := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		preview := m.Content
		if len(preview) > historyPreviewLen {
			preview = preview[:historyPreviewLen] + "..."
		}
		out[i] = map[string]any{
			"role":       string(m.Role),
			"content":    preview,
			"created_at": m.CreatedAt,
		}
	}
	return out
}
