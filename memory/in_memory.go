package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/toolmesh/core"
)

// DefaultSessionID is used when a caller supplies no session identifier.
const DefaultSessionID = "default"

// SessionID returns id, or DefaultSessionID when id is empty.
func SessionID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

// InMemoryStore is a process-local HistoryStore. Histories live for the
// lifetime of the process.
//
// Concurrency: protected by RWMutex. Concurrent appends to the same session
// are serialised in arrival order.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Message
}

var _ core.HistoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]core.Message)}
}

// Messages returns a copy of the session history, creating it when absent.
func (m *InMemoryStore) Messages(_ context.Context, sessionID string) ([]core.Message, error) {
	sessionID = SessionID(sessionID)

	m.mu.RLock()
	msgs, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if _, exists := m.sessions[sessionID]; !exists {
			m.sessions[sessionID] = []core.Message{}
		}
		m.mu.Unlock()

		return []core.Message{}, nil
	}

	return append([]core.Message(nil), msgs...), nil
}

// AppendHuman appends a human message.
func (m *InMemoryStore) AppendHuman(_ context.Context, sessionID, text string) error {
	m.append(sessionID, core.NewHumanMessage(text))
	return nil
}

// AppendAI appends an AI message.
func (m *InMemoryStore) AppendAI(_ context.Context, sessionID, text string) error {
	m.append(sessionID, core.NewAIMessage(text))
	return nil
}

func (m *InMemoryStore) append(sessionID string, msg core.Message) {
	sessionID = SessionID(sessionID)

	m.mu.Lock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msg)
	m.mu.Unlock()
}

// Clear drops the history of a session.
func (m *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, SessionID(sessionID))
	m.mu.Unlock()
	return nil
}

// Sessions returns the identifiers of all known sessions.
func (m *InMemoryStore) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
