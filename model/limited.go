package model

import (
	"context"

	"github.com/hupe1980/toolmesh/core"
)

// Limited throttles a Model through a core.CallLimiter: a token bucket rate
// limit plus an optional budget of calls per run.
type Limited struct {
	inner   Model
	limiter *core.CallLimiter
}

// NewLimited wraps inner with limiter.
func NewLimited(inner Model, limiter *core.CallLimiter) *Limited {
	return &Limited{inner: inner, limiter: limiter}
}

// LimitMiddleware returns a Factory middleware sharing one limiter across
// every model built by the factory.
func LimitMiddleware(limiter *core.CallLimiter) func(Model) Model {
	return func(m Model) Model { return NewLimited(m, limiter) }
}

// Generate implements Model. It blocks until the limiter admits the call.
func (l *Limited) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		out := make(chan Response)
		errCh := make(chan error, 1)
		errCh <- err
		close(out)
		close(errCh)
		return out, errCh
	}

	return l.inner.Generate(ctx, req)
}

// Info implements Model.
func (l *Limited) Info() Info { return l.inner.Info() }
