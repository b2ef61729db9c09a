package research

import (
	"context"
	"log/slog"
	"time"
)

type Option func(c *Chain)

// WithLogger specifies the logger for the chain
func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = l
	}
}

// WithPolicy sets the retry policy applied to each provider
func WithPolicy(p Policy) Option {
	return func(c *Chain) {
		c.policy = p
	}
}

// WithClock overrides the clock used for deadline checks
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		c.now = now
	}
}

// WithSleep overrides the backoff sleep. Used in tests
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Chain) {
		c.sleep = sleep
	}
}
