package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
)

// fakeEmbedder maps texts onto a two dimensional "weather vs. math" space.
type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		var v [2]float32
		if strings.Contains(t, "rain") || strings.Contains(t, "weather") {
			v[0] = 1
		}
		if strings.Contains(t, "sum") || strings.Contains(t, "math") {
			v[1] = 1
		}
		out[i] = v[:]
	}
	return out, nil
}

var docs = []core.Document{
	{ID: "d1", Content: "Rain is expected in Paris tomorrow", Metadata: map[string]any{"source": "forecast"}},
	{ID: "d2", Content: "The sum of two and two is four", Metadata: map[string]any{"source": "math"}},
	{ID: "d3", Content: "Paris is the capital of France"},
}

func vectorStores(t *testing.T, embedder core.Embedder) map[string]core.VectorStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vectors.db"), embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]core.VectorStore{
		"memory": NewInMemoryStore(embedder),
		"sqlite": sqlite,
	}
}

func TestStores_KeywordSearch(t *testing.T) {
	ctx := context.Background()

	for name, store := range vectorStores(t, nil) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "kb", docs...))

			res, err := store.Search(ctx, "weather in Paris", "kb", core.SearchOptions{})
			require.NoError(t, err)
			require.Len(t, res, 2)
			assert.Equal(t, "d1", res[0].ID) // matches "in" and "paris"
			assert.Equal(t, "d3", res[1].ID)
			assert.InDelta(t, 2.0/3.0, res[0].Score, 1e-9)
			assert.InDelta(t, 1.0/3.0, res[1].Score, 1e-9)

			res, err = store.Search(ctx, "paris", "kb", core.SearchOptions{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, res, 1)

			res, err = store.Search(ctx, "paris", "other", core.SearchOptions{})
			require.NoError(t, err)
			assert.Empty(t, res)
		})
	}
}

func TestStores_EmbeddingSearch(t *testing.T) {
	ctx := context.Background()

	for name, store := range vectorStores(t, fakeEmbedder{}) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "kb", docs...))

			res, err := store.Search(ctx, "will it rain?", "kb", core.SearchOptions{MinScore: 0.5})
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, "d1", res[0].ID)
			assert.InDelta(t, 1.0, res[0].Score, 1e-6)
			assert.Equal(t, "forecast", res[0].Metadata["source"])
		})
	}
}

func TestStores_UpsertByID(t *testing.T) {
	ctx := context.Background()

	for name, store := range vectorStores(t, nil) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "kb", core.Document{ID: "x", Content: "old text"}))
			require.NoError(t, store.Add(ctx, "kb", core.Document{ID: "x", Content: "new text"}))

			res, err := store.Search(ctx, "text", "kb", core.SearchOptions{})
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, "new text", res[0].Content)
		})
	}
}

func TestStores_EmbedderErrors(t *testing.T) {
	ctx := context.Background()

	store := NewInMemoryStore(fakeEmbedder{err: errors.New("quota")})
	assert.ErrorContains(t, store.Add(ctx, "kb", docs...), "quota")

	_, err := store.Search(ctx, "q", "kb", core.SearchOptions{})
	assert.ErrorContains(t, err, "quota")
}

func TestFormatResults(t *testing.T) {
	assert.Empty(t, FormatResults(nil, true))

	out := FormatResults([]core.SearchResult{
		{Content: "first", Score: 0.9, Metadata: map[string]any{"b": 2, "a": 1}},
		{Content: "second", Score: 0.5},
	}, true)

	assert.Equal(t, "[1] (score 0.90) first\n    metadata: a=1, b=2\n\n[2] (score 0.50) second", out)
	assert.NotContains(t, FormatResults([]core.SearchResult{{Content: "x", Score: 1, Metadata: map[string]any{"a": 1}}}, false), "metadata")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Enabled: true}.WithDefaults()
	assert.Equal(t, DefaultCollection, cfg.CollectionName)
	assert.Equal(t, DefaultTopK, cfg.TopK)

	opts := Config{TopK: 3, ScoreThreshold: 0.2}.SearchOptions()
	assert.Equal(t, core.SearchOptions{Limit: 3, MinScore: 0.2}, opts)
}

func TestSearchTool(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(nil)
	require.NoError(t, store.Add(ctx, "docs", docs...))

	st := NewSearchTool(store, Config{Enabled: true, CollectionName: "docs", IncludeMetadata: true})
	assert.Equal(t, SearchToolName, st.Name())

	env := tool.NewEnvelope(st)

	out := env.Execute(ctx, map[string]any{"query": "rain"})
	assert.Contains(t, out, "Rain is expected")
	assert.Contains(t, out, "source=forecast")

	assert.Equal(t, "No relevant documents found.", env.Execute(ctx, map[string]any{"query": "quantum"}))
	assert.True(t, strings.HasPrefix(env.Execute(ctx, map[string]any{}), "Error: "))
}
