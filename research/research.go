// Package research implements the external research fallback: a structured
// request sent to a chain of providers under a declared retry policy, and a
// defensive parser for their responses
package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

var errNoProviders = errors.New("no research providers configured")

// Provider is a single external research backend
type Provider interface {
	// Name returns the human-readable name of the provider
	Name() string

	// Research sends the request and returns the raw response text.
	// Rate-limit and overload responses must wrap types.ErrRateLimited
	Research(ctx context.Context, req *Request) (string, error)
}

// Chain runs a request against its providers in order, retrying each
// according to the policy before failing over to the next one
type Chain struct {
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	providers []Provider
	policy    Policy
}

// NewChain creates a new provider chain. Providers are tried in the given order
func NewChain(providers []Provider, opts ...Option) *Chain {
	c := &Chain{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		sleep:     sleepContext,
		providers: providers,
		policy:    DefaultPolicy(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Providers returns the names of the chained providers, in order
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))

	for _, p := range c.providers {
		names = append(names, p.Name())
	}

	return names
}

// Research resolves the request through the provider chain.
// It returns types.ErrTimeout if the caller's deadline elapses (or would elapse
// during a backoff), and types.ErrProviderUnavailable once every provider failed
func (c *Chain) Research(ctx context.Context, req *Request) (*Result, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrProviderUnavailable, errNoProviders)
	}

	var lastErr error

	for _, provider := range c.providers {
		result, err := c.runProvider(ctx, provider, req)
		if err == nil {
			return result, nil
		}

		if errors.Is(err, types.ErrTimeout) {
			return nil, err
		}

		c.logger.Warn(
			"research provider failed, failing over",
			"provider", provider.Name(),
			"code", req.Code,
			"origin", req.Origin,
			"destination", req.Destination,
			"err", err,
		)

		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", types.ErrProviderUnavailable, lastErr)
}

// runProvider runs the retry loop for a single provider
func (c *Chain) runProvider(ctx context.Context, provider Provider, req *Request) (*Result, error) {
	attempts := c.policy.attempts()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrTimeout, err)
		}

		raw, err := c.call(ctx, provider, req)
		if err == nil {
			result, parseErr := Parse(raw)
			if parseErr != nil {
				return nil, fmt.Errorf("unable to parse %s response: %w", provider.Name(), parseErr)
			}

			result.Provider = provider.Name()

			c.logger.Debug(
				"research succeeded",
				"provider", provider.Name(),
				"attempt", attempt,
				"code", req.Code,
			)

			return result, nil
		}

		// The caller's deadline elapsed during the attempt
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrTimeout, ctxErr)
		}

		if !errors.Is(err, types.ErrRateLimited) || attempt >= attempts {
			return nil, fmt.Errorf("provider %s failed after %d attempt(s): %w", provider.Name(), attempt, err)
		}

		delay := c.policy.Backoff(attempt)

		if deadline, ok := ctx.Deadline(); ok && c.now().Add(delay).After(deadline) {
			return nil, fmt.Errorf(
				"%w: backoff of %s would exceed the deadline",
				types.ErrTimeout,
				delay,
			)
		}

		c.logger.Info(
			"research provider rate limited, backing off",
			"provider", provider.Name(),
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
		)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrTimeout, err)
		}
	}
}

// call runs a single provider attempt, bounded by the per-attempt timeout
func (c *Chain) call(ctx context.Context, provider Provider, req *Request) (string, error) {
	if c.policy.AttemptTimeout <= 0 {
		return provider.Research(ctx, req)
	}

	attemptCtx, cancelFn := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancelFn()

	return provider.Research(attemptCtx, req)
}

// sleepContext waits for the given duration, or until the context is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
