package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/toolmesh/core"
)

// SessionHistory binds a HistoryStore to one session. It is what an agent
// turn reads from before the model call and writes to afterwards.
//
// The existing history is loaded once on construction. SaveContext appends
// to the local buffer and to the store, so other agents bound to the same
// session observe the exchange through the store.
type SessionHistory struct {
	store     core.HistoryStore
	sessionID string

	mu       sync.RWMutex
	messages []core.Message
}

// NewSessionHistory loads the history of sessionID from store. An empty
// sessionID selects DefaultSessionID.
func NewSessionHistory(ctx context.Context, store core.HistoryStore, sessionID string) (*SessionHistory, error) {
	sessionID = SessionID(sessionID)

	msgs, err := store.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionHistory{
		store:     store,
		sessionID: sessionID,
		messages:  append([]core.Message(nil), msgs...),
	}, nil
}

// SessionID returns the bound session identifier.
func (h *SessionHistory) SessionID() string { return h.sessionID }

// Messages returns a copy of the buffered history.
func (h *SessionHistory) Messages() []core.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]core.Message(nil), h.messages...)
}

// Contents returns the history as model contents.
func (h *SessionHistory) Contents() []core.Content {
	msgs := h.Messages()

	out := make([]core.Content, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToContent())
	}

	return out
}

// SaveContext records one completed exchange: the human input followed by
// the AI output.
func (h *SessionHistory) SaveContext(ctx context.Context, human, ai string) error {
	if err := h.store.AppendHuman(ctx, h.sessionID, human); err != nil {
		return err
	}

	h.mu.Lock()
	h.messages = append(h.messages, core.NewHumanMessage(human))
	h.mu.Unlock()

	if err := h.store.AppendAI(ctx, h.sessionID, ai); err != nil {
		return err
	}

	h.mu.Lock()
	h.messages = append(h.messages, core.NewAIMessage(ai))
	h.mu.Unlock()

	return nil
}

// Clear drops the session history in the buffer and the store.
func (h *SessionHistory) Clear(ctx context.Context) error {
	if err := h.store.Clear(ctx, h.sessionID); err != nil {
		return err
	}

	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()

	return nil
}
