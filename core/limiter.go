package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// CallLimiter enforces a budget of model calls per run and, optionally, a
// rate limit shared by all runs.
//
// A run is opened with WithRun. Agent invocations open one unless ctx
// already carries a run, so a coordinator turn and the agents it delegates
// to draw from one budget. Calls made outside a run are not budgeted.
type CallLimiter struct {
	max  int
	rate *rate.Limiter
}

// NewCallLimiter creates a limiter allowing max calls per run (0 =
// unlimited). rl may be nil; when set it is shared by every run.
func NewCallLimiter(max int, rl *rate.Limiter) *CallLimiter {
	return &CallLimiter{max: max, rate: rl}
}

// Acquire reserves one call of the run carried by ctx. It fails once the
// run's budget is spent and blocks while the shared rate limit is
// exhausted. Rejected calls do not consume budget.
func (l *CallLimiter) Acquire(ctx context.Context) error {
	run := runFromContext(ctx)

	if l.max > 0 && run != nil {
		run.mu.Lock()
		if run.calls >= l.max {
			run.mu.Unlock()
			return fmt.Errorf("exceeded max model calls: %d", l.max)
		}
		run.calls++
		run.mu.Unlock()
	}

	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			if l.max > 0 && run != nil {
				run.mu.Lock()
				run.calls--
				run.mu.Unlock()
			}
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	return nil
}

// Remaining returns how many calls the run in ctx has left, or -1 when the
// limiter is unlimited or ctx carries no run.
func (l *CallLimiter) Remaining(ctx context.Context) int {
	run := runFromContext(ctx)
	if l.max == 0 || run == nil {
		return -1
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if r := l.max - run.calls; r > 0 {
		return r
	}

	return 0
}

type runBudget struct {
	mu    sync.Mutex
	calls int
}

// WithRun opens a run on ctx. A ctx that already carries a run is returned
// unchanged.
func WithRun(ctx context.Context) context.Context {
	if runFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, runKey, &runBudget{})
}

// CallsInRun returns the budgeted calls made in the run carried by ctx.
func CallsInRun(ctx context.Context) int {
	run := runFromContext(ctx)
	if run == nil {
		return 0
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	return run.calls
}

func runFromContext(ctx context.Context) *runBudget {
	run, _ := ctx.Value(runKey).(*runBudget)
	return run
}

// NewRateLimiter builds a shared limiter from requests per second and burst.
// A non-positive rps yields nil (no rate limiting).
func NewRateLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
