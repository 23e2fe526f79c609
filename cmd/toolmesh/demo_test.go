package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/stream"
)

func TestDemoTools(t *testing.T) {
	var (
		mu      sync.Mutex
		updates []stream.Update
	)

	m, err := toolmesh.New(func(o *toolmesh.Options) {
		o.OnToolUpdate = stream.HandlerFunc(func(u stream.Update) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		})
	})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, registerDemo(m, model.Provider{Kind: model.KindCustom, Custom: model.NewMockModel("mock", "test")}))
	assert.Equal(t, []string{"echo", "clock", "count"}, m.Tools().Names())
	assert.Equal(t, 2, m.Agents().Len())

	ctx := context.Background()

	out, err := m.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	out, err = m.CallTool(ctx, "clock", map[string]any{"zone": "Mars/Olympus"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error:"), out)

	out, err = m.CallTool(ctx, "count", map[string]any{"n": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "1 2 3", out)

	mu.Lock()
	defer mu.Unlock()

	var progress int
	for _, u := range updates {
		if u.ToolName == "count" && u.Kind == stream.KindProgress {
			progress++
		}
	}
	assert.Equal(t, 3, progress)
}

func TestListTools(t *testing.T) {
	m, err := toolmesh.New()
	require.NoError(t, err)
	defer m.Close()

	m.RegisterTools(demoTools())

	require.NoError(t, listTools(m.Tools().List(), true))
}
