package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/agent"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/tool"
)

// demoTools is the tool provider registered by every command.
func demoTools() tool.Provider {
	return tool.ProviderFunc(func() []tool.Definition {
		return []tool.Definition{
			{
				Descriptor: tool.Descriptor{
					Name:        "echo",
					Description: "Repeat the given text back",
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"text": map[string]any{"type": "string", "description": "Text to repeat"},
						},
						"required": []string{"text"},
					},
				},
				Handler: func(_ *core.ToolContext, args map[string]any) (any, error) {
					text, _ := args["text"].(string)
					return text, nil
				},
			},
			{
				Descriptor: tool.Descriptor{
					Name:        "clock",
					Description: "Return the current time, optionally in an IANA time zone",
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"zone": map[string]any{"type": "string", "description": "IANA zone such as Europe/Berlin"},
						},
					},
				},
				Handler: clock,
			},
			{
				Descriptor: tool.Descriptor{
					Name:        "count",
					Description: "Count slowly up to n, reporting progress",
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"n": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
						},
						"required": []string{"n"},
					},
					Streaming: tool.Bool(true),
				},
				Handler: count,
			},
		}
	})
}

func clock(_ *core.ToolContext, args map[string]any) (any, error) {
	now := time.Now()

	if zone, _ := args["zone"].(string); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("unknown zone %q", zone)
		}
		now = now.In(loc)
	}

	return now.Format(time.RFC1123), nil
}

func count(tc *core.ToolContext, args map[string]any) (any, error) {
	n := 1
	if v, ok := args["n"].(float64); ok {
		n = int(v)
	}

	seen := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		select {
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		case <-time.After(100 * time.Millisecond):
		}

		seen = append(seen, fmt.Sprint(i))
		tc.ReportProgress(i*100/n, fmt.Sprintf("counted %d", i))
	}

	return strings.Join(seen, " "), nil
}

// registerDemo adds the demo tools and agents to m. Both agents use provider.
func registerDemo(m *toolmesh.Mesh, provider model.Provider) error {
	m.RegisterTools(demoTools())

	if err := m.RegisterAgent(agent.Descriptor{
		Name:        "Assistant",
		Description: "General helper that can echo text, tell the time and recall the conversation",
		Provider:    provider,
		UseMemory:   true,
		HistoryTool: true,
	}, "echo", "clock"); err != nil {
		return err
	}

	return m.RegisterAgent(agent.Descriptor{
		Name:        "Counter",
		Description: "Counts up to a number and reports progress while doing so",
		Provider:    provider,
	}, "count")
}
