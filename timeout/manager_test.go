package timeout

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePolicy_OverrideWins(t *testing.T) {
	m := NewManager(func(o *Options) {
		o.Global = Policy{Enabled: true, Duration: time.Second}
	})

	assert.Equal(t, Policy{Enabled: true, Duration: time.Second}, m.ResolvePolicy(nil))

	override := &Policy{Enabled: false, Duration: 10 * time.Millisecond}
	assert.Equal(t, *override, m.ResolvePolicy(override))

	m.SetGlobalEnabled(false)
	m.SetGlobalDuration(2 * time.Second)
	assert.Equal(t, Policy{Enabled: false, Duration: 2 * time.Second}, m.ResolvePolicy(nil))
	assert.False(t, m.Global().Active())
}

func TestRunWithTimeout_FastBodyReturnsResult(t *testing.T) {
	m := NewManager()

	v, err := m.RunWithTimeout(context.Background(), "fast", 200*time.Millisecond, func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRunWithTimeout_SlowBodyTimesOut(t *testing.T) {
	m := NewManager()
	var observedCancel atomic.Bool

	start := time.Now()
	_, err := m.RunWithTimeout(context.Background(), "slow", 50*time.Millisecond, func(ctx context.Context) (any, error) {
		select {
		case <-time.After(500 * time.Millisecond):
			return "late", nil
		case <-ctx.Done():
			observedCancel.Store(true)
			return nil, ctx.Err()
		}
	})
	elapsed := time.Since(start)

	var te *core.ToolTimedOutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "slow", te.Tool)
	assert.Equal(t, int64(50), te.DurationMs())
	assert.Less(t, elapsed, 400*time.Millisecond)

	assert.Eventually(t, observedCancel.Load, time.Second, 5*time.Millisecond)
}

func TestRunWithTimeout_BodyErrorAndPanic(t *testing.T) {
	m := NewManager()

	_, err := m.RunWithTimeout(context.Background(), "boom", time.Second, func(context.Context) (any, error) {
		return nil, errors.New("fail")
	})
	assert.EqualError(t, err, "fail")

	_, err = m.RunWithTimeout(context.Background(), "panic", 0, func(context.Context) (any, error) {
		panic("kaboom")
	})
	assert.ErrorContains(t, err, "kaboom")
}

func TestRunWithTimeout_ParentCancellation(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RunWithTimeout(ctx, "x", time.Second, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokens_CreateCancelAll(t *testing.T) {
	m := NewManager()

	a := m.CreateToken(context.Background(), "search")
	b := m.CreateToken(context.Background(), "search")
	other := m.CreateToken(context.Background(), "search_v2")

	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, strings.HasPrefix(a.ID(), "search_"))
	assert.Equal(t, 3, m.Active())

	var waiterRan atomic.Bool
	a.OnCancel(func() { waiterRan.Store(true) })

	assert.Equal(t, 2, m.CancelAll("search"))
	assert.True(t, a.Cancelled())
	assert.True(t, b.Cancelled())
	assert.True(t, waiterRan.Load())
	assert.False(t, other.Cancelled())
	assert.Equal(t, 1, m.Active())

	select {
	case <-a.Done():
	default:
		t.Fatal("expected cancelled token context to be done")
	}
}

func TestTokens_ReleaseDoesNotCancel(t *testing.T) {
	m := NewManager()
	tok := m.CreateToken(context.Background(), "echo")

	_, ok := m.Token(tok.ID())
	require.True(t, ok)

	m.Release(tok.ID())
	assert.False(t, tok.Cancelled())
	assert.Equal(t, 0, m.Active())

	assert.False(t, m.Cancel(tok.ID()))

	var ran atomic.Bool
	tok.Cancel()
	tok.OnCancel(func() { ran.Store(true) })
	assert.True(t, ran.Load())
}

func TestNotifyTimeout(t *testing.T) {
	var gotTool string
	var gotDur time.Duration

	m := NewManager(func(o *Options) {
		o.OnTimeout = func(tool string, d time.Duration) {
			gotTool, gotDur = tool, d
		}
	})
	m.NotifyTimeout("slow", 50*time.Millisecond)
	assert.Equal(t, "slow", gotTool)
	assert.Equal(t, 50*time.Millisecond, gotDur)

	m.SetOnTimeout(func(string, time.Duration) { panic("bad callback") })
	assert.NotPanics(t, func() { m.NotifyTimeout("slow", time.Millisecond) })
}
