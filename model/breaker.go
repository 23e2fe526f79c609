package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hupe1980/toolmesh/logging"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"-"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"-"`
}

// Breaker wraps a Model with circuit breaker protection. When generations
// fail repeatedly the circuit opens and further calls fail fast without
// reaching the provider.
type Breaker struct {
	inner   Model
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps inner with a circuit breaker. Zero fields of cfg fall
// back to defaults.
func NewBreaker(inner Model, cfg BreakerConfig, logger logging.Logger) *Breaker {
	logger = logging.OrNoOp(logger)

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "model:" + inner.Info().Name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("model.breaker.state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Breaker{inner: inner, breaker: cb}
}

// BreakerMiddleware returns a Factory middleware wrapping every model.
func BreakerMiddleware(cfg BreakerConfig, logger logging.Logger) func(Model) Model {
	return func(m Model) Model { return NewBreaker(m, cfg, logger) }
}

// Generate implements Model. The whole generation, including streamed
// chunks, counts as one breaker request.
func (b *Breaker) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		_, err := b.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, forward(ctx, b.inner, req, out)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("model %q circuit open: %w", b.inner.Info().Name, err)
			}
			errCh <- err
		}
	}()

	return out, errCh
}

// Info implements Model.
func (b *Breaker) Info() Info { return b.inner.Info() }

// State returns the current circuit breaker state.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }

// forward copies the responses of inner to out and returns its error.
func forward(ctx context.Context, inner Model, req Request, out chan<- Response) error {
	respCh, errCh := inner.Generate(ctx, req)

	var genErr error

	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && genErr == nil {
				genErr = err
			}
		}
	}

	return genErr
}
