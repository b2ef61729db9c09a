package cache

import (
	"log/slog"
	"time"
)

type Option func(c *Cache)

// WithLogger specifies the logger for the cache
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithClock overrides the clock used for staleness computation
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithWriteTimeout bounds every cache write. Defaults to 10s
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.writeTimeout = d
	}
}
