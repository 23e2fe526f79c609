package timeout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
)

// DefaultDuration is the global deadline applied when none is configured.
const DefaultDuration = 30 * time.Second

// Policy describes whether a deadline applies and how long it is.
type Policy struct {
	Enabled  bool          `yaml:"enabled"`
	Duration time.Duration `yaml:"-"`
}

// Active reports whether the policy actually bounds execution time.
func (p Policy) Active() bool { return p.Enabled && p.Duration > 0 }

// Callback is invoked after a tool execution timed out.
type Callback func(toolName string, d time.Duration)

// Options configures a Manager.
type Options struct {
	Global    Policy
	OnTimeout Callback
	Logger    logging.Logger
}

// Manager resolves timeout policies, races bodies against deadlines and owns
// the per-execution cancellation tokens.
type Manager struct {
	mu        sync.RWMutex
	global    Policy
	onTimeout Callback
	tokens    map[string]*Token
	logger    logging.Logger
}

// NewManager creates a Manager. The global policy defaults to disabled with
// DefaultDuration.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Global: Policy{Enabled: false, Duration: DefaultDuration},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		global:    opts.Global,
		onTimeout: opts.OnTimeout,
		tokens:    make(map[string]*Token),
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// ResolvePolicy returns the per-tool override when present, the global
// policy otherwise.
func (m *Manager) ResolvePolicy(override *Policy) Policy {
	if override != nil {
		return *override
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.global
}

// Global returns the current global policy.
func (m *Manager) Global() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.global
}

// SetGlobal replaces the global policy.
func (m *Manager) SetGlobal(p Policy) {
	m.mu.Lock()
	m.global = p
	m.mu.Unlock()
}

// SetGlobalEnabled toggles the global policy.
func (m *Manager) SetGlobalEnabled(enabled bool) {
	m.mu.Lock()
	m.global.Enabled = enabled
	m.mu.Unlock()
}

// SetGlobalDuration changes the global deadline.
func (m *Manager) SetGlobalDuration(d time.Duration) {
	m.mu.Lock()
	m.global.Duration = d
	m.mu.Unlock()
}

// SetOnTimeout installs the timeout callback.
func (m *Manager) SetOnTimeout(fn Callback) {
	m.mu.Lock()
	m.onTimeout = fn
	m.mu.Unlock()
}

// NotifyTimeout invokes the timeout callback, if any. A panicking callback is
// recovered and logged.
func (m *Manager) NotifyTimeout(toolName string, d time.Duration) {
	m.mu.RLock()
	fn := m.onTimeout
	m.mu.RUnlock()

	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("timeout.callback.panic", "tool", toolName, "recover", r)
		}
	}()

	fn(toolName, d)
}

type outcome struct {
	value any
	err   error
}

// RunWithTimeout races body against a timer of d. When the timer fires first
// it returns a *core.ToolTimedOutError and cancels the context handed to
// body; the body goroutine is not awaited. A non-positive d disables the race.
func (m *Manager) RunWithTimeout(
	ctx context.Context,
	toolName string,
	d time.Duration,
	body func(ctx context.Context) (any, error),
) (any, error) {
	if d <= 0 {
		return safeCall(ctx, body)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := safeCall(runCtx, body)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		m.logger.Warn("timeout.deadline.exceeded", "tool", toolName, "duration_ms", d.Milliseconds())
		return nil, &core.ToolTimedOutError{Tool: toolName, Duration: d}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func safeCall(ctx context.Context, body func(ctx context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return body(ctx)
}

// CreateToken issues a fresh token for one execution of toolName and stores
// it under its execution id.
func (m *Manager) CreateToken(ctx context.Context, toolName string) *Token {
	if ctx == nil {
		ctx = context.Background()
	}

	t := newToken(ctx, toolName)

	m.mu.Lock()
	m.tokens[t.ID()] = t
	m.mu.Unlock()

	return t
}

// Token returns the outstanding token stored under executionID.
func (m *Manager) Token(executionID string) (*Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[executionID]
	return t, ok
}

// Release forgets the token stored under executionID and frees its
// resources. Releasing does not mark the token cancelled.
func (m *Manager) Release(executionID string) {
	m.mu.Lock()
	t, ok := m.tokens[executionID]
	delete(m.tokens, executionID)
	m.mu.Unlock()

	if ok {
		t.release()
	}
}

// Cancel cancels and forgets a single execution.
func (m *Manager) Cancel(executionID string) bool {
	m.mu.Lock()
	t, ok := m.tokens[executionID]
	delete(m.tokens, executionID)
	m.mu.Unlock()

	if ok {
		t.Cancel()
	}
	return ok
}

// CancelAll cancels every outstanding execution of toolName and returns how
// many tokens were cancelled. Execution ids are prefixed by the tool name;
// the stored tool name is compared as well so "echo" never matches "echo_v2".
func (m *Manager) CancelAll(toolName string) int {
	prefix := toolName + "_"

	m.mu.Lock()
	var matched []*Token
	for id, t := range m.tokens {
		if strings.HasPrefix(id, prefix) && t.ToolName() == toolName {
			matched = append(matched, t)
			delete(m.tokens, id)
		}
	}
	m.mu.Unlock()

	for _, t := range matched {
		t.Cancel()
	}

	if len(matched) > 0 {
		m.logger.Info("timeout.cancel_all", "tool", toolName, "count", len(matched))
	}

	return len(matched)
}

// Active returns the number of outstanding tokens.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.tokens)
}
