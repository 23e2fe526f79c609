package timeout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Token is the cancellation handle of a single tool execution. It wraps a
// context so tool bodies can select on Done or check Cancelled.
type Token struct {
	id       string
	toolName string
	ctx      context.Context
	cancel   context.CancelFunc

	cancelled atomic.Bool
	mu        sync.Mutex
	waiters   []func()
}

func newToken(parent context.Context, toolName string) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{
		id:       NewExecutionID(toolName),
		toolName: toolName,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the execution identifier the token is stored under.
func (t *Token) ID() string { return t.id }

// ToolName returns the tool the execution belongs to.
func (t *Token) ToolName() string { return t.toolName }

// Context returns a context that is done once the token is cancelled.
func (t *Token) Context() context.Context { return t.ctx }

// Done mirrors Context().Done().
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Cancel marks the token cancelled, cancels its context and runs the
// registered waiters once. Subsequent calls are no-ops.
func (t *Token) Cancel() {
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}
	t.cancel()

	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// OnCancel registers fn to run when the token is cancelled. If the token is
// already cancelled fn runs immediately.
func (t *Token) OnCancel(fn func()) {
	t.mu.Lock()
	if !t.cancelled.Load() {
		t.waiters = append(t.waiters, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// release frees the context resources without marking the token cancelled.
func (t *Token) release() {
	t.mu.Lock()
	t.waiters = nil
	t.mu.Unlock()
	t.cancel()
}

// NewExecutionID derives a unique execution identifier of the form
// <tool>_<unix millis>_<random suffix>.
func NewExecutionID(toolName string) string {
	now := time.Now()
	suffix := ulid.Make().String()
	return fmt.Sprintf("%s_%d_%s", toolName, now.UnixMilli(), strings.ToLower(suffix[ulid.EncodedSize-8:]))
}
