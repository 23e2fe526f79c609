package core

import (
	"context"
	"time"
)

// MessageRole tags a session history entry.
type MessageRole string

const (
	// MessageHuman marks a message authored by the end user.
	MessageHuman MessageRole = "human"
	// MessageAI marks a message produced by an agent or the coordinator.
	MessageAI MessageRole = "ai"
)

// Message is one entry of a session's ordered history.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewHumanMessage creates a human message stamped with the current time.
func NewHumanMessage(text string) Message {
	return Message{Role: MessageHuman, Content: text, CreatedAt: time.Now().UTC()}
}

// NewAIMessage creates an AI message stamped with the current time.
func NewAIMessage(text string) Message {
	return Message{Role: MessageAI, Content: text, CreatedAt: time.Now().UTC()}
}

// ToContent maps the message onto the model-facing Content representation.
func (m Message) ToContent() Content {
	role := RoleUser
	if m.Role == MessageAI {
		role = RoleAssistant
	}
	return NewTextContent(role, m.Content)
}

// HistoryStore persists per-session ordered message history.
//
// Messages creates an empty history on first access. Appends are strictly
// chronological; implementations never reorder or deduplicate.
type HistoryStore interface {
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	AppendHuman(ctx context.Context, sessionID, text string) error
	AppendAI(ctx context.Context, sessionID, text string) error
	Clear(ctx context.Context, sessionID string) error
}
