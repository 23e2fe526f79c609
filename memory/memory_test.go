package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func stores(t *testing.T) map[string]core.HistoryStore {
	return map[string]core.HistoryStore{
		"memory": NewInMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestHistoryStore_CreatesEmptyHistoryOnFirstAccess(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			msgs, err := store.Messages(context.Background(), "s1")
			require.NoError(t, err)
			assert.NotNil(t, msgs)
			assert.Empty(t, msgs)
		})
	}
}

func TestHistoryStore_AppendsInOrder(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AppendHuman(ctx, "s1", "hello"))
			require.NoError(t, store.AppendAI(ctx, "s1", "hi"))
			require.NoError(t, store.AppendHuman(ctx, "s2", "other session"))

			msgs, err := store.Messages(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, core.MessageHuman, msgs[0].Role)
			assert.Equal(t, "hello", msgs[0].Content)
			assert.Equal(t, core.MessageAI, msgs[1].Role)
			assert.Equal(t, "hi", msgs[1].Content)

			require.NoError(t, store.Clear(ctx, "s1"))
			msgs, err = store.Messages(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, msgs)

			msgs, err = store.Messages(ctx, "s2")
			require.NoError(t, err)
			assert.Len(t, msgs, 1)
		})
	}
}

func TestHistoryStore_EmptySessionIsDefault(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AppendHuman(ctx, "", "anonymous"))

			msgs, err := store.Messages(ctx, DefaultSessionID)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, "anonymous", msgs[0].Content)
		})
	}
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.AppendHuman(ctx, "s", "a"))

	msgs, _ := store.Messages(ctx, "s")
	msgs[0].Content = "changed"

	again, _ := store.Messages(ctx, "s")
	assert.Equal(t, "a", again[0].Content)
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AppendHuman(ctx, "s", fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	msgs, err := store.Messages(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, msgs, 50)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendHuman(ctx, "s1", "remember me"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "remember me", msgs[0].Content)
	assert.False(t, msgs[0].CreatedAt.IsZero())

	ids, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestSessionHistory_SaveContext(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	h, err := NewSessionHistory(ctx, store, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionID, h.SessionID())

	require.NoError(t, h.SaveContext(ctx, "what is 2+2?", "4"))
	require.NoError(t, h.SaveContext(ctx, "what did I just ask?", "You asked what 2+2 is."))

	contents := h.Contents()
	require.Len(t, contents, 4)
	assert.Equal(t, core.RoleUser, contents[0].Role)
	assert.Equal(t, "what is 2+2?", contents[0].Text())
	assert.Equal(t, core.RoleAssistant, contents[1].Role)
	assert.Equal(t, "4", contents[1].Text())

	stored, err := store.Messages(ctx, DefaultSessionID)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	require.NoError(t, h.Clear(ctx))
	assert.Empty(t, h.Messages())
}

func TestSessionHistory_PreloadsExistingMessages(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	require.NoError(t, store.AppendHuman(ctx, "s1", "hello"))
	require.NoError(t, store.AppendAI(ctx, "s1", "hi there"))

	h, err := NewSessionHistory(ctx, store, "s1")
	require.NoError(t, err)

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.MessageHuman, msgs[0].Role)
	assert.Equal(t, "hi there", msgs[1].Content)

	// A second adapter on the same session sees what the first one saved.
	require.NoError(t, h.SaveContext(ctx, "bye", "goodbye"))

	other, err := NewSessionHistory(ctx, store, "s1")
	require.NoError(t, err)
	assert.Len(t, other.Messages(), 4)
}
