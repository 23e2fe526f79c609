// Package stream routes tool execution updates from many concurrent
// executions to subscribers without cross-talk.
//
// Updates are grouped in one Channel per tool name (not per execution):
// concurrent executions of the same tool share a channel and are told apart
// by Update.ExecutionID. Delivery has two explicit paths. Global sinks
// registered with SubscribeGlobal are called synchronously from Publish (the
// fast path). Channel subscribers, including those registered with
// SubscribeAll, are served by a per-channel dispatcher goroutine (the
// broadcast path).
package stream

import "time"

// Kind classifies an Update.
type Kind string

const (
	KindStart    Kind = "start"
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
	KindTimeout  Kind = "timeout"
)

// Terminal reports whether k ends an execution.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError || k == KindTimeout
}

// Update is one event of a tool execution.
type Update struct {
	Kind        Kind      `json:"type"`
	ToolName    string    `json:"tool_name"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Content     string    `json:"content,omitempty"`
	Progress    int       `json:"progress,omitempty"` // 0-100
	Error       string    `json:"error,omitempty"`
	Result      string    `json:"result,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Handler consumes updates. Returned errors and panics are logged and never
// stop delivery to other handlers.
type Handler func(u Update) error

// HandlerFunc adapts a plain callback to Handler.
func HandlerFunc(fn func(u Update)) Handler {
	return func(u Update) error {
		fn(u)
		return nil
	}
}
